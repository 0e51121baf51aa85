package mcpclient

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"dayai/internal/instrumentation"
	authflow "dayai/internal/oauth"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

const (
	// DefaultRefreshInterval and DefaultRefreshBurst bound how often one
	// connection may refresh its token.
	DefaultRefreshInterval = 10 * time.Second
	DefaultRefreshBurst    = 3

	// refreshFlightTimeout bounds a shared refresh-and-reconnect. The flight
	// outlives the caller that started it so joined callers are not
	// cancelled with it.
	refreshFlightTimeout = 60 * time.Second
)

// Options configures a Manager. Every field is optional.
type Options struct {
	// HTTPClient is used for MCP sessions and token refreshes.
	HTTPClient *http.Client
	Clock      authflow.Clock
	// Persist receives refreshed tokens before the retried call proceeds.
	Persist       authflow.PersistFunc
	ClientFactory ClientFactory
	Metrics       *instrumentation.Metrics
	// ClientInfo is announced during initialize.
	ClientInfo mcp.Implementation

	RefreshInterval time.Duration
	RefreshBurst    int
}

// ConnectRequest describes a server to connect to.
type ConnectRequest struct {
	ServerID      string
	EndpointURL   string
	TokenEndpoint string
	Registration  oauth.ClientRegistration
	Tokens        *oauth.TokenSet
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager owns the MCP sessions of all connected servers. Tool calls with a
// stale token refresh it first; a call rejected with 401 refreshes the
// token, reconnects, and is retried once. Refreshes of the same server are
// coalesced.
type Manager struct {
	opts      Options
	refresher *authflow.Refresher

	mu    sync.RWMutex
	conns map[string]*connection

	flights singleflight.Group
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.ClientFactory == nil {
		opts.ClientFactory = NewStreamableHTTPClient
	}
	if opts.ClientInfo.Name == "" {
		opts.ClientInfo = mcp.Implementation{Name: "dayai", Version: "dev"}
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.RefreshBurst <= 0 {
		opts.RefreshBurst = DefaultRefreshBurst
	}

	client := oauth.NewClient(oauth.WithHTTPClient(opts.HTTPClient), oauth.WithClock(opts.Clock.Now))
	return &Manager{
		opts:      opts,
		refresher: authflow.NewRefresher(client, opts.Persist, opts.Metrics),
		conns:     make(map[string]*connection),
	}
}

func (m *Manager) open(ctx context.Context, endpointURL string, tokens *oauth.TokenSet) (MCPClient, error) {
	accessToken := ""
	if tokens != nil {
		accessToken = tokens.AccessToken
	}
	return m.opts.ClientFactory(ctx, ClientConfig{
		EndpointURL: endpointURL,
		AccessToken: accessToken,
		HTTPClient:  m.opts.HTTPClient,
		ClientInfo:  m.opts.ClientInfo,
	})
}

// Connect opens a session to the server, replacing any existing one, and
// caches its tool list.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) ([]ToolInfo, error) {
	m.Disconnect(req.ServerID)

	logging.Info("MCPClient", "Connecting to %s at %s", req.ServerID, req.EndpointURL)

	client, err := m.open(ctx, req.EndpointURL, req.Tokens)
	if err != nil {
		if IsAuthFailure(err) {
			return nil, &AuthFailureError{ServerID: req.ServerID, Err: err}
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", req.ServerID, err)
	}

	tools, err := listTools(ctx, req.ServerID, client)
	if err != nil {
		logging.BestEffort("MCPClient", "close after failed tools/list", client.Close)
		if IsAuthFailure(err) {
			return nil, &AuthFailureError{ServerID: req.ServerID, Err: err}
		}
		return nil, err
	}

	conn := &connection{
		serverID:      req.ServerID,
		endpointURL:   req.EndpointURL,
		tokenEndpoint: req.TokenEndpoint,
		registration:  req.Registration,
		tokens:        req.Tokens.Clone(),
		tools:         tools,
		state:         StateConnected,
		client:        client,
		limiter:       rate.NewLimiter(rate.Every(m.opts.RefreshInterval), m.opts.RefreshBurst),
	}

	m.mu.Lock()
	if old, ok := m.conns[req.ServerID]; ok {
		// a concurrent Connect won the race
		defer logging.BestEffort("MCPClient", "close replaced session", old.client.Close)
	}
	m.conns[req.ServerID] = conn
	m.mu.Unlock()

	logging.Info("MCPClient", "Connected to %s with %d tools", req.ServerID, len(tools))
	return append([]ToolInfo(nil), tools...), nil
}

func listTools(ctx context.Context, serverID string, client MCPClient) ([]ToolInfo, error) {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, toolInfoFromMCP(serverID, t))
	}
	return infos, nil
}

// CallTool invokes tool on the server and decodes its result.
func (m *Manager) CallTool(ctx context.Context, serverID, tool string, args map[string]any) (any, error) {
	tokens, err := m.currentTokens(serverID)
	if err != nil {
		return nil, err
	}

	now := m.opts.Clock.Now()
	if tokens != nil && tokens.IsStale(now) {
		switch {
		case tokens.CanRefresh():
			logging.Debug("MCPClient", "Access token for %s is stale, refreshing before calling %s", serverID, tool)
			if err := m.refreshAndReconnect(ctx, serverID, tokens.AccessToken); err != nil {
				return nil, err
			}
		case tokens.IsExpired(now):
			m.setState(serverID, StateFailed)
			return nil, &oauth.RefreshError{Reason: oauth.RefreshNoToken}
		default:
			logging.Debug("MCPClient", "Access token for %s is stale but cannot be refreshed, using it until expiry", serverID)
		}
	}

	result, usedToken, err := m.callOnce(ctx, serverID, tool, args)
	if err != nil && IsAuthFailure(err) {
		logging.Info("MCPClient", "Tool call %s on %s was rejected, refreshing token and retrying once", tool, serverID)
		m.opts.Metrics.RecordAuthRetry(ctx, serverID)

		if rErr := m.refreshAndReconnect(ctx, serverID, usedToken); rErr != nil {
			return nil, rErr
		}

		result, _, err = m.callOnce(ctx, serverID, tool, args)
		if err != nil && IsAuthFailure(err) {
			m.setState(serverID, StateFailed)
			return nil, &AuthFailureError{ServerID: serverID, Retried: true, Err: err}
		}
	}
	if err != nil {
		return nil, err
	}

	if result.IsError {
		return nil, &ToolError{Server: serverID, Tool: tool, Message: ErrorMessage(result)}
	}
	return DecodeResult(result), nil
}

// callOnce performs a single tools/call and reports the access token the
// session was opened with.
func (m *Manager) callOnce(ctx context.Context, serverID, tool string, args map[string]any) (*mcp.CallToolResult, string, error) {
	m.mu.RLock()
	conn, ok := m.conns[serverID]
	var (
		client MCPClient
		token  string
	)
	if ok {
		client = conn.client
		if conn.tokens != nil {
			token = conn.tokens.AccessToken
		}
	}
	m.mu.RUnlock()

	if !ok {
		return nil, "", &NotConnectedError{ServerID: serverID}
	}

	start := time.Now()
	result, err := client.CallTool(ctx, tool, args)
	m.opts.Metrics.RecordToolCall(ctx, serverID, tool, time.Since(start), err)
	return result, token, err
}

// refreshAndReconnect refreshes the tokens of serverID and replaces its
// session. observed is the access token the caller found stale or saw
// rejected; if the connection already holds a different one, another caller
// refreshed in the meantime and nothing is done.
func (m *Manager) refreshAndReconnect(ctx context.Context, serverID, observed string) error {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(serverID, func() (any, error) {
		ctx, cancel := context.WithTimeout(flightCtx, refreshFlightTimeout)
		defer cancel()
		return nil, m.doRefreshAndReconnect(ctx, serverID, observed)
	})

	select {
	case res := <-ch:
		if res.Shared {
			logging.Debug("MCPClient", "Joined in-flight token refresh for %s", serverID)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) doRefreshAndReconnect(ctx context.Context, serverID, observed string) error {
	m.mu.Lock()
	conn, ok := m.conns[serverID]
	if !ok {
		m.mu.Unlock()
		return &NotConnectedError{ServerID: serverID}
	}
	if conn.tokens != nil && conn.tokens.AccessToken != observed {
		m.mu.Unlock()
		return nil
	}
	req := authflow.RefreshRequest{
		ServerID:      serverID,
		TokenEndpoint: conn.tokenEndpoint,
		Registration:  conn.registration,
		Tokens:        conn.tokens.Clone(),
	}
	endpointURL := conn.endpointURL
	limiter := conn.limiter
	conn.state = StateRefreshing
	m.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		m.setStateOf(conn, StateConnected)
		return fmt.Errorf("token refresh for %s rate limited: %w", serverID, err)
	}

	updated, err := m.refresher.Refresh(ctx, req)
	if updated == nil {
		m.setStateOf(conn, StateFailed)
		return err
	}
	if err != nil {
		logging.Warn("MCPClient", "Continuing with refreshed tokens for %s that were not persisted: %v", serverID, err)
	}

	client, err := m.open(ctx, endpointURL, updated)
	if err != nil {
		m.mu.Lock()
		conn.tokens = updated
		conn.state = StateFailed
		m.mu.Unlock()
		if IsAuthFailure(err) {
			return &AuthFailureError{ServerID: serverID, Err: err}
		}
		return fmt.Errorf("failed to reconnect to %s after token refresh: %w", serverID, err)
	}

	tools, err := listTools(ctx, serverID, client)
	if err != nil {
		logging.BestEffort("MCPClient", "close after failed tools/list", client.Close)
		m.mu.Lock()
		conn.tokens = updated
		conn.state = StateFailed
		m.mu.Unlock()
		if IsAuthFailure(err) {
			return &AuthFailureError{ServerID: serverID, Err: err}
		}
		return fmt.Errorf("failed to list tools of %s after token refresh: %w", serverID, err)
	}

	m.mu.Lock()
	if current, ok := m.conns[serverID]; !ok || current != conn {
		m.mu.Unlock()
		logging.BestEffort("MCPClient", "close session of disconnected server", client.Close)
		return &NotConnectedError{ServerID: serverID}
	}
	old := conn.client
	conn.client = client
	conn.tokens = updated
	conn.tools = tools
	conn.state = StateConnected
	m.mu.Unlock()

	logging.BestEffort("MCPClient", "close previous session", old.Close)
	logging.Info("MCPClient", "Reconnected to %s with refreshed token and %d tools", serverID, len(tools))
	return nil
}

func (m *Manager) currentTokens(serverID string) (*oauth.TokenSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return nil, &NotConnectedError{ServerID: serverID}
	}
	return conn.tokens.Clone(), nil
}

func (m *Manager) setState(serverID string, state ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[serverID]; ok {
		conn.state = state
	}
}

func (m *Manager) setStateOf(conn *connection, state ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn.state = state
}

// ListTools returns the cached tools of serverID.
func (m *Manager) ListTools(serverID string) ([]ToolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return nil, &NotConnectedError{ServerID: serverID}
	}
	return append([]ToolInfo(nil), conn.tools...), nil
}

// AllTools returns the tools of every connected server ordered by their
// qualified names.
func (m *Manager) AllTools() []ToolInfo {
	m.mu.RLock()
	var all []ToolInfo
	for _, conn := range m.conns {
		all = append(all, conn.tools...)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].QualifiedName() < all[j].QualifiedName()
	})
	return all
}

// State returns the connection state of serverID. A connected server whose
// token has gone stale reports StateStale.
func (m *Manager) State(serverID string) ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return StateDisconnected
	}
	if conn.state == StateConnected && conn.tokens != nil && conn.tokens.IsStale(m.opts.Clock.Now()) {
		return StateStale
	}
	return conn.state
}

// Tokens returns a copy of the current tokens of serverID, or nil.
func (m *Manager) Tokens(serverID string) *oauth.TokenSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return nil
	}
	return conn.tokens.Clone()
}

// Servers returns the IDs of all connected servers, sorted.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Disconnect closes the session of serverID and forgets it. It reports
// whether the server was connected.
func (m *Manager) Disconnect(serverID string) bool {
	m.mu.Lock()
	conn, ok := m.conns[serverID]
	delete(m.conns, serverID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	logging.BestEffort("MCPClient", "close session of "+serverID, conn.client.Close)
	logging.Info("MCPClient", "Disconnected from %s", serverID)
	return true
}

// DisconnectAll disconnects every server.
func (m *Manager) DisconnectAll() {
	for _, id := range m.Servers() {
		m.Disconnect(id)
	}
}
