package oauth

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

const (
	// DefaultCallbackHost is the loopback address the callback listener binds.
	DefaultCallbackHost = "127.0.0.1"

	// DefaultCallbackPort is the fixed port registered as part of the
	// redirect URI. It must match the registration exactly.
	DefaultCallbackPort = 31338

	// DefaultCallbackPath is the path of the redirect URI.
	DefaultCallbackPath = "/callback"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successPage = template.Must(template.New("success").Funcs(sprig.FuncMap()).Parse(callbackSuccessHTML))
	errorPage   = template.Must(template.New("error").Funcs(sprig.FuncMap()).Parse(callbackErrorHTML))
)

// CallbackResult holds the query parameters of the authorization redirect.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// callbackOutcome is what the handler reports to the waiting flow: either a
// validated code or the reason the callback was rejected.
type callbackOutcome struct {
	result *CallbackResult
	err    error
}

// CallbackServer is a short-lived loopback HTTP server receiving exactly one
// authorization redirect. It validates the state parameter itself so the
// browser can be shown the right page before the code is exchanged.
type CallbackServer struct {
	host          string
	port          int
	path          string
	expectedState string
	appName       string
	serverName    string

	server   *http.Server
	listener net.Listener
	outcome  chan callbackOutcome
	serveErr chan error

	handleOnce sync.Once
	stopOnce   sync.Once
}

// CallbackServerConfig configures a CallbackServer.
type CallbackServerConfig struct {
	Host string
	// Port 0 binds an ephemeral port.
	Port          int
	Path          string
	ExpectedState string
	// AppName and ServerName are shown on the browser pages.
	AppName    string
	ServerName string
}

// NewCallbackServer creates a callback server; it does not bind until Start.
func NewCallbackServer(cfg CallbackServerConfig) *CallbackServer {
	if cfg.Host == "" {
		cfg.Host = DefaultCallbackHost
	}
	if cfg.Path == "" {
		cfg.Path = DefaultCallbackPath
	}
	if cfg.AppName == "" {
		cfg.AppName = "dayai"
	}
	return &CallbackServer{
		host:          cfg.Host,
		port:          cfg.Port,
		path:          cfg.Path,
		expectedState: cfg.ExpectedState,
		appName:       cfg.AppName,
		serverName:    cfg.ServerName,
		outcome:       make(chan callbackOutcome, 1),
		serveErr:      make(chan error, 1),
	}
}

// Start binds the listener and starts serving. A bind failure is returned as
// *oauth.PortInUseError so a concurrent login fails fast instead of racing
// for the redirect.
func (s *CallbackServer) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return &oauth.PortInUseError{Addr: addr, Err: err}
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.serveErr <- err:
			default:
			}
		}
	}()

	logging.Debug("CallbackServer", "Listening for authorization callback on %s", s.RedirectURI())
	return nil
}

// RedirectURI returns the redirect URI served by this server.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(s.host, fmt.Sprint(s.port)), s.path)
}

// Port returns the bound port, or the configured one before Start.
func (s *CallbackServer) Port() int {
	return s.port
}

// Wait blocks until a callback has been processed, the server fails, or ctx
// is done. A rejected callback is returned as an error.
func (s *CallbackServer) Wait(ctx context.Context) (*CallbackResult, error) {
	select {
	case o := <-s.outcome:
		return o.result, o.err
	case err := <-s.serveErr:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	handled := false
	s.handleOnce.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback runs exactly once per server.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	err := s.validate(result)
	s.render(w, err)

	s.outcome <- callbackOutcome{result: result, err: err}
}

// validate rejects a callback carrying an error, lacking a code, or whose
// state does not match the flow.
func (s *CallbackServer) validate(result *CallbackResult) error {
	if result.Error != "" {
		logging.Warn("CallbackServer", "Authorization server returned error %q", result.Error)
		return &oauth.AuthorizationError{Code: result.Error, Description: result.ErrorDescription}
	}
	if subtle.ConstantTimeCompare([]byte(result.State), []byte(s.expectedState)) != 1 {
		logging.Audit("oauth_state_mismatch",
			"expected_state_len", len(s.expectedState),
			"received_state_len", len(result.State))
		return &oauth.CsrfError{}
	}
	if result.Code == "" {
		return &oauth.AuthorizationError{Code: "missing_code", Description: "the callback did not include an authorization code"}
	}
	return nil
}

func (s *CallbackServer) render(w http.ResponseWriter, err error) {
	var (
		tmpl   = successPage
		status = http.StatusOK
		data   = map[string]string{"AppName": s.appName, "Server": s.serverName}
	)

	if err != nil {
		tmpl = errorPage
		status = http.StatusBadRequest
		var authErr *oauth.AuthorizationError
		var csrfErr *oauth.CsrfError
		switch {
		case errors.As(err, &authErr):
			data["Error"] = authErr.Code
			data["Description"] = authErr.Description
		case errors.As(err, &csrfErr):
			data["Error"] = "state_mismatch"
			data["Description"] = "The response did not belong to this login attempt."
		}
	}

	w.WriteHeader(status)
	if execErr := tmpl.Execute(w, data); execErr != nil {
		logging.Error("CallbackServer", execErr, "Failed to render callback page")
	}
}

// Stop shuts the server down and closes the listener. It is safe to call
// more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logging.BestEffort("CallbackServer", "callback server shutdown", func() error {
				return s.server.Shutdown(ctx)
			})
		}
		if s.listener != nil {
			// Shutdown already closed it; the error is expected then.
			_ = s.listener.Close()
		}
	})
}
