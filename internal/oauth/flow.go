package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dayai/internal/instrumentation"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// DefaultFlowTimeout bounds how long a flow waits for the browser redirect.
const DefaultFlowTimeout = 5 * time.Minute

// FlowState is the lifecycle state of an authorization flow.
type FlowState int

const (
	FlowIdle FlowState = iota
	FlowAwaitingRedirect
	FlowExchangingCode
	FlowCompleted
	FlowFailed
)

func (s FlowState) String() string {
	switch s {
	case FlowIdle:
		return "idle"
	case FlowAwaitingRedirect:
		return "awaiting_redirect"
	case FlowExchangingCode:
		return "exchanging_code"
	case FlowCompleted:
		return "completed"
	case FlowFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// active reports whether a flow in this state owns the callback listener.
func (s FlowState) active() bool {
	return s == FlowAwaitingRedirect || s == FlowExchangingCode
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// BrowserOpener opens an authorization URL for the user.
type BrowserOpener func(url string) error

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Client *oauth.Client

	Host string
	// Port of the callback listener. 0 binds an ephemeral port, which only
	// makes sense when the redirect URI was registered for it.
	Port    int
	Path    string
	Timeout time.Duration

	// OpenBrowser defaults to the system browser. Nil-safe.
	OpenBrowser BrowserOpener
	// OnAuthURL, if set, is called with every authorization URL before the
	// browser is opened.
	OnAuthURL func(url string)

	Clock   Clock
	Metrics *instrumentation.Metrics
	AppName string
}

// FlowRequest describes the server a flow authorizes against.
type FlowRequest struct {
	ServerID      string
	ServerName    string
	AuthEndpoint  string
	TokenEndpoint string
	Registration  oauth.ClientRegistration
	Scopes        []string
}

// Coordinator runs authorization-code flows with PKCE, one at a time.
type Coordinator struct {
	cfg CoordinatorConfig

	mu     sync.Mutex
	state  FlowState
	cancel context.CancelCauseFunc
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Client == nil {
		cfg.Client = oauth.NewClient()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultCallbackHost
	}
	if cfg.Path == "" {
		cfg.Path = DefaultCallbackPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFlowTimeout
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = OpenBrowser
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Coordinator{cfg: cfg}
}

// RedirectURI returns the redirect URI this coordinator's listener serves.
// It is what has to be registered with the authorization server.
func (c *Coordinator) RedirectURI() string {
	return NewCallbackServer(CallbackServerConfig{Host: c.cfg.Host, Port: c.cfg.Port, Path: c.cfg.Path}).RedirectURI()
}

// State returns the state of the current or last flow.
func (c *Coordinator) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel aborts the in-flight flow. It returns false when no flow is
// running; a completed flow is left untouched.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.active() || c.cancel == nil {
		return false
	}
	c.cancel(context.Canceled)
	return true
}

func (c *Coordinator) setState(s FlowState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run performs one authorization-code flow: it binds the callback listener,
// hands the authorization URL to the browser, waits for the redirect, and
// exchanges the code. The listener is torn down on every exit path.
func (c *Coordinator) Run(ctx context.Context, req FlowRequest) (tokens *oauth.TokenSet, err error) {
	flowCtx, cancelTimeout := context.WithTimeoutCause(ctx, c.cfg.Timeout, &oauth.FlowTimeoutError{After: c.cfg.Timeout})
	flowCtx, cancelFlow := context.WithCancelCause(flowCtx)

	// The cancel func is published together with the state so a Cancel
	// that sees an active flow can always abort it.
	c.mu.Lock()
	if c.state.active() {
		c.mu.Unlock()
		cancelFlow(nil)
		cancelTimeout()
		return nil, oauth.ErrFlowInProgress
	}
	c.state = FlowAwaitingRedirect
	c.cancel = cancelFlow
	c.mu.Unlock()

	var (
		server       *CallbackServer
		teardownOnce sync.Once
	)
	teardown := func() {
		teardownOnce.Do(func() {
			if server != nil {
				server.Stop()
			}
			cancelFlow(nil)
			cancelTimeout()
			c.mu.Lock()
			c.cancel = nil
			c.mu.Unlock()
		})
	}
	defer teardown()

	defer func() {
		if err != nil {
			c.setState(FlowFailed)
			logging.Warn("OAuthFlow", "Authorization flow for %s failed: %v", req.ServerID, err)
		} else {
			c.setState(FlowCompleted)
			logging.Info("OAuthFlow", "Authorization flow for %s completed", req.ServerID)
		}
		c.cfg.Metrics.RecordFlow(context.WithoutCancel(ctx), req.ServerID, err)
	}()

	authState, err := oauth.NewAuthorizationState("", c.cfg.Clock.Now(), c.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization state: %w", err)
	}

	// cancelled before the listener was bound
	if cause := context.Cause(flowCtx); cause != nil {
		return nil, cause
	}

	server = NewCallbackServer(CallbackServerConfig{
		Host:          c.cfg.Host,
		Port:          c.cfg.Port,
		Path:          c.cfg.Path,
		ExpectedState: authState.State,
		AppName:       c.cfg.AppName,
		ServerName:    req.ServerName,
	})
	if err := server.Start(); err != nil {
		server = nil
		return nil, err
	}
	authState.RedirectURI = server.RedirectURI()

	authURL, err := c.cfg.Client.BuildAuthorizationURL(oauth.AuthCodeRequest{
		AuthEndpoint: req.AuthEndpoint,
		ClientID:     req.Registration.ClientID,
		Scopes:       req.Scopes,
		State:        authState,
	})
	if err != nil {
		return nil, err
	}

	if c.cfg.OnAuthURL != nil {
		c.cfg.OnAuthURL(authURL)
	}
	if err := c.cfg.OpenBrowser(authURL); err != nil {
		logging.Warn("OAuthFlow", "Failed to open browser, open the URL manually: %v", err)
	}

	result, err := server.Wait(flowCtx)
	if err != nil {
		var timeoutErr *oauth.FlowTimeoutError
		if errors.As(err, &timeoutErr) {
			logging.Audit("oauth_flow_timeout", "server", req.ServerID, "after", c.cfg.Timeout.String())
		}
		return nil, err
	}
	teardown()

	exchangeCtx, cancelExchange := context.WithCancelCause(ctx)
	defer cancelExchange(nil)

	c.mu.Lock()
	c.state = FlowExchangingCode
	c.cancel = cancelExchange
	c.mu.Unlock()

	tokens, err = c.cfg.Client.ExchangeCode(exchangeCtx, oauth.ExchangeRequest{
		TokenEndpoint: req.TokenEndpoint,
		Registration:  req.Registration,
		Code:          result.Code,
		RedirectURI:   authState.RedirectURI,
		CodeVerifier:  authState.CodeVerifier,
	})
	if err != nil {
		return nil, err
	}

	logging.Audit("oauth_tokens_issued",
		"server", req.ServerID,
		"has_refresh_token", tokens.RefreshToken != "",
		"expires_at", tokens.ExpiresAt)
	return tokens, nil
}
