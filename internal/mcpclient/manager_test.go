package mcpclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayai/internal/testing/mock"
	"dayai/pkg/oauth"
)

const testClientID = "client-test"

type managerFixture struct {
	clock    *mock.MockClock
	oauth    *mock.OAuthServer
	mcp      *mock.ProtectedMCPServer
	manager  *Manager
	persists atomic.Int32
	lastSave atomic.Pointer[oauth.TokenSet]
}

func newManagerFixture(t *testing.T, cfg mock.OAuthServerConfig) *managerFixture {
	t.Helper()

	f := &managerFixture{clock: mock.NewMockClock(time.Now())}
	cfg.Clock = f.clock
	f.oauth = mock.NewOAuthServer(cfg)
	t.Cleanup(f.oauth.Close)

	f.mcp = mock.NewProtectedMCPServer(mock.ProtectedMCPServerConfig{
		OAuthServer: f.oauth,
		Tools: []server.ServerTool{
			mock.TextTool("search", "Search organizations, people and opportunities", `{"results":[{"id":"org_1","name":"Acme"}]}`),
			mock.TextTool("get__context", "Get workspace context", "You are connected to the Acme workspace."),
			mock.EchoTool("echo"),
			mock.FailingTool("broken", "organization not found"),
		},
	})
	t.Cleanup(f.mcp.Close)

	f.manager = NewManager(Options{
		Clock: f.clock,
		Persist: func(ctx context.Context, serverID string, tokens *oauth.TokenSet) error {
			f.persists.Add(1)
			f.lastSave.Store(tokens.Clone())
			return nil
		},
		ClientInfo: mcp.Implementation{Name: "dayai-test", Version: "0.0.0"},
	})
	t.Cleanup(f.manager.DisconnectAll)
	return f
}

func (f *managerFixture) tokens() *oauth.TokenSet {
	resp := f.oauth.IssueTokens(testClientID, "assistant:*:use")
	ts := &oauth.TokenSet{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, TokenType: "Bearer"}
	if resp.ExpiresIn > 0 {
		ts.ExpiresAt = f.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return ts
}

func (f *managerFixture) connect(t *testing.T, tokens *oauth.TokenSet) []ToolInfo {
	t.Helper()
	tools, err := f.manager.Connect(context.Background(), ConnectRequest{
		ServerID:      "day-ai",
		EndpointURL:   f.mcp.Endpoint(),
		TokenEndpoint: f.oauth.TokenURL(),
		Registration:  oauth.ClientRegistration{ClientID: testClientID},
		Tokens:        tokens,
	})
	require.NoError(t, err)
	return tools
}

func TestManager_Connect(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	tools := f.connect(t, f.tokens())

	require.Len(t, tools, 4)
	assert.Equal(t, StateConnected, f.manager.State("day-ai"))
	assert.Equal(t, []string{"day-ai"}, f.manager.Servers())
	assert.Equal(t, int32(1), f.mcp.InitializeCalls.Load())
	assert.Equal(t, int32(1), f.mcp.ListToolsCalls.Load())

	all := f.manager.AllTools()
	names := make([]string, 0, len(all))
	for _, tool := range all {
		names = append(names, tool.QualifiedName())
	}
	assert.Equal(t, []string{
		"mcp__day-ai__broken",
		"mcp__day-ai__echo",
		"mcp__day-ai__get__context",
		"mcp__day-ai__search",
	}, names)

	listed, err := f.manager.ListTools("day-ai")
	require.NoError(t, err)
	assert.Len(t, listed, 4)
	for _, tool := range listed {
		assert.NotEmpty(t, tool.InputSchema)
	}
}

func TestManager_ConnectRejected(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})

	_, err := f.manager.Connect(context.Background(), ConnectRequest{
		ServerID:    "day-ai",
		EndpointURL: f.mcp.Endpoint(),
		Tokens:      &oauth.TokenSet{AccessToken: "not-issued"},
	})

	var authErr *AuthFailureError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.Retried)
	assert.Equal(t, StateDisconnected, f.manager.State("day-ai"))
	assert.Empty(t, f.manager.Servers())
}

func TestManager_CallTool_Results(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())
	ctx := context.Background()

	t.Run("JSON result is decoded", func(t *testing.T) {
		got, err := f.manager.CallTool(ctx, "day-ai", "search", map[string]any{"query": "acme"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"results": []any{map[string]any{"id": "org_1", "name": "Acme"}}}, got)
	})

	t.Run("text result stays raw", func(t *testing.T) {
		got, err := f.manager.CallTool(ctx, "day-ai", "get__context", nil)
		require.NoError(t, err)
		assert.Equal(t, "You are connected to the Acme workspace.", got)
	})

	t.Run("arguments are passed through", func(t *testing.T) {
		got, err := f.manager.CallTool(ctx, "day-ai", "echo", map[string]any{"query": "acme", "limit": 5})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"query": "acme", "limit": float64(5)}, got)
	})

	t.Run("isError result", func(t *testing.T) {
		_, err := f.manager.CallTool(ctx, "day-ai", "broken", nil)
		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "day-ai", toolErr.Server)
		assert.Equal(t, "broken", toolErr.Tool)
		assert.Equal(t, "organization not found", toolErr.Message)
	})

	assert.Equal(t, int32(0), f.oauth.RefreshCalls.Load())
}

func TestManager_CallTool_NotConnected(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})

	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)

	var notConnected *NotConnectedError
	require.ErrorAs(t, err, &notConnected)
	assert.Equal(t, "day-ai", notConnected.ServerID)

	_, err = f.manager.ListTools("day-ai")
	assert.ErrorAs(t, err, &notConnected)
	assert.Nil(t, f.manager.Tokens("day-ai"))
}

func TestManager_CallTool_StaleTokenRefreshesOnce(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	original := f.tokens()
	f.connect(t, original)

	// 56 minutes into a one hour token: inside the 5 minute threshold
	f.clock.Advance(56 * time.Minute)
	assert.Equal(t, StateStale, f.manager.State("day-ai"))

	got, err := f.manager.CallTool(context.Background(), "day-ai", "get__context", nil)
	require.NoError(t, err)
	assert.Equal(t, "You are connected to the Acme workspace.", got)

	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())
	assert.Equal(t, int32(1), f.mcp.ToolCallAttempts.Load())
	assert.Equal(t, int32(2), f.mcp.InitializeCalls.Load(), "session is reopened with the new token")
	assert.Equal(t, int32(2), f.mcp.ListToolsCalls.Load(), "tool list is reloaded on the new session")
	assert.Equal(t, int32(1), f.persists.Load())

	current := f.manager.Tokens("day-ai")
	require.NotNil(t, current)
	assert.NotEqual(t, original.AccessToken, current.AccessToken)
	assert.Equal(t, current.AccessToken, f.lastSave.Load().AccessToken)
	assert.Equal(t, StateConnected, f.manager.State("day-ai"))
}

// withClientFactory replaces the fixture manager with one whose sessions
// come from factory.
func (f *managerFixture) withClientFactory(t *testing.T, factory ClientFactory) {
	t.Helper()
	f.manager.DisconnectAll()
	f.manager = NewManager(Options{
		Clock:         f.clock,
		ClientFactory: factory,
		ClientInfo:    mcp.Implementation{Name: "dayai-test", Version: "0.0.0"},
	})
	t.Cleanup(f.manager.DisconnectAll)
}

// staticToolsClient serves a fixed tool list and echoes tool names.
type staticToolsClient struct {
	tools []mcp.Tool
}

func (c *staticToolsClient) ListTools(context.Context) ([]mcp.Tool, error) { return c.tools, nil }

func (c *staticToolsClient) CallTool(_ context.Context, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(name), nil
}

func (c *staticToolsClient) Close() error { return nil }

func TestManager_RefreshReloadsToolList(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})

	var sessions atomic.Int32
	f.withClientFactory(t, func(ctx context.Context, cfg ClientConfig) (MCPClient, error) {
		tools := []mcp.Tool{mcp.NewTool("search")}
		if sessions.Add(1) > 1 {
			tools = append(tools, mcp.NewTool("create_organization"))
		}
		return &staticToolsClient{tools: tools}, nil
	})

	tools := f.connect(t, f.tokens())
	require.Len(t, tools, 1)

	f.clock.Advance(56 * time.Minute)
	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())

	listed, err := f.manager.ListTools("day-ai")
	require.NoError(t, err)
	names := make([]string, 0, len(listed))
	for _, tool := range listed {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"search", "create_organization"}, names)
}

func TestManager_JoinedRefreshSurvivesFirstCallerCancel(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})

	var sessions atomic.Int32
	reconnecting := make(chan struct{})
	release := make(chan struct{})
	f.withClientFactory(t, func(ctx context.Context, cfg ClientConfig) (MCPClient, error) {
		if sessions.Add(1) == 2 {
			close(reconnecting)
			<-release
		}
		return NewStreamableHTTPClient(ctx, cfg)
	})

	f.connect(t, f.tokens())
	f.clock.Advance(57 * time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.manager.CallTool(firstCtx, "day-ai", "search", nil)
		firstErr <- err
	}()
	<-reconnecting

	secondErr := make(chan error, 1)
	go func() {
		_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
		secondErr <- err
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	// give the second caller time to join the flight before it completes
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-secondErr)
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())
	assert.Equal(t, StateConnected, f.manager.State("day-ai"))
}

func TestManager_CallTool_ConcurrentStaleCallsRefreshOnce(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())
	f.clock.Advance(58 * time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())
	assert.Equal(t, int32(callers), f.mcp.ToolCallAttempts.Load())
}

func TestManager_CallTool_RetriesOnceAfter401(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())
	f.mcp.Reject401.Store(1)

	got, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.Equal(t, int32(2), f.mcp.ToolCallAttempts.Load())
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())
	assert.Equal(t, StateConnected, f.manager.State("day-ai"))
}

func TestManager_CallTool_Persistent401(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())
	f.mcp.Reject401.Store(2)

	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)

	var authErr *AuthFailureError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Retried)
	assert.True(t, IsAuthFailure(err))

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 401, statusErr.StatusCode)
	require.NotNil(t, statusErr.Challenge)
	assert.Equal(t, "invalid_token", statusErr.Challenge.Error)

	assert.Equal(t, int32(2), f.mcp.ToolCallAttempts.Load(), "exactly one retry")
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load(), "exactly one refresh")
	assert.Equal(t, StateFailed, f.manager.State("day-ai"))
}

func TestManager_CallTool_ServerRevokedToken(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	tokens := f.tokens()
	f.connect(t, tokens)

	f.oauth.ExpireAccessToken(tokens.AccessToken)

	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())
}

func TestManager_CallTool_RefreshRejected(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())
	f.oauth.FailRefresh.Store(true)
	f.clock.Advance(59 * time.Minute)

	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)

	var refreshErr *oauth.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, oauth.RefreshRejected, refreshErr.Reason)
	assert.True(t, oauth.IsTerminalRefresh(err))
	assert.Equal(t, StateFailed, f.manager.State("day-ai"))
	assert.Equal(t, int32(0), f.mcp.ToolCallAttempts.Load())
	assert.Equal(t, int32(0), f.persists.Load())
}

func TestManager_CallTool_WithoutRefreshToken(t *testing.T) {
	t.Run("stale but unexpired token is used", func(t *testing.T) {
		f := newManagerFixture(t, mock.OAuthServerConfig{})
		tokens := f.tokens()
		tokens.RefreshToken = ""
		f.connect(t, tokens)
		f.clock.Advance(57 * time.Minute)

		_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
		require.NoError(t, err)
		assert.Equal(t, int32(0), f.oauth.RefreshCalls.Load())
	})

	t.Run("expired token is terminal", func(t *testing.T) {
		f := newManagerFixture(t, mock.OAuthServerConfig{})
		tokens := f.tokens()
		tokens.RefreshToken = ""
		f.connect(t, tokens)
		f.clock.ExpirePast(tokens.ExpiresAt)

		_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)

		var refreshErr *oauth.RefreshError
		require.ErrorAs(t, err, &refreshErr)
		assert.Equal(t, oauth.RefreshNoToken, refreshErr.Reason)
		assert.Equal(t, StateFailed, f.manager.State("day-ai"))
		assert.Equal(t, int32(0), f.mcp.ToolCallAttempts.Load())
	})
}

func TestManager_UnknownExpiryIsNeverStale(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{OmitExpiresIn: true})
	tokens := f.tokens()
	require.True(t, tokens.ExpiresAt.IsZero())
	f.connect(t, tokens)

	f.clock.Advance(30 * time.Minute)
	assert.Equal(t, StateConnected, f.manager.State("day-ai"))

	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.oauth.RefreshCalls.Load())
}

func TestManager_Disconnect(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())

	assert.True(t, f.manager.Disconnect("day-ai"))
	assert.False(t, f.manager.Disconnect("day-ai"))
	assert.Equal(t, StateDisconnected, f.manager.State("day-ai"))
	assert.Empty(t, f.manager.AllTools())

	_, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
	var notConnected *NotConnectedError
	assert.ErrorAs(t, err, &notConnected)
}

func TestManager_ConnectReplacesSession(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})
	f.connect(t, f.tokens())
	second := f.tokens()
	f.connect(t, second)

	assert.Equal(t, []string{"day-ai"}, f.manager.Servers())
	assert.Equal(t, second.AccessToken, f.manager.Tokens("day-ai").AccessToken)
}

// fakeClient is an MCPClient driven by a function, for paths the mock
// server cannot produce.
type fakeClient struct {
	call   func(name string) (*mcp.CallToolResult, error)
	closed atomic.Bool
}

func (c *fakeClient) ListTools(context.Context) ([]mcp.Tool, error) {
	return []mcp.Tool{mcp.NewTool("search")}, nil
}

func (c *fakeClient) CallTool(_ context.Context, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	return c.call(name)
}

func (c *fakeClient) Close() error {
	c.closed.Store(true)
	return errors.New("close failed")
}

func TestManager_MessageOnlyAuthFailure(t *testing.T) {
	f := newManagerFixture(t, mock.OAuthServerConfig{})

	var calls atomic.Int32
	var clients []*fakeClient
	var mu sync.Mutex
	f.manager.opts.ClientFactory = func(ctx context.Context, cfg ClientConfig) (MCPClient, error) {
		c := &fakeClient{call: func(string) (*mcp.CallToolResult, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("tool call failed: Token Expired")
			}
			return mcp.NewToolResultText("ok"), nil
		}}
		mu.Lock()
		clients = append(clients, c)
		mu.Unlock()
		return c, nil
	}

	f.connect(t, f.tokens())
	got, err := f.manager.CallTool(context.Background(), "day-ai", "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), f.oauth.RefreshCalls.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, clients, 2)
	assert.True(t, clients[0].closed.Load(), "replaced session is closed even if close fails")
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "stale", StateStale.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "failed", StateFailed.String())
}
