package cli

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"dayai/internal/mcpclient"
	"dayai/pkg/oauth"
)

// Exit codes returned by the dayai binary.
const (
	ExitCodeSuccess = 0
	// ExitCodeError is any failure not covered below.
	ExitCodeError = 1
	// ExitCodeAuthRequired means the user has to run "dayai login": there is
	// no session, the refresh token was rejected, or the server kept
	// answering 401.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed means an authorization flow was started and failed.
	ExitCodeAuthFailed = 3
)

// ExitCode maps err to one of the exit codes above.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var (
		required    *AuthRequiredError
		notConn     *mcpclient.NotConnectedError
		registerErr *oauth.RegistrationError
	)
	switch {
	case oauth.IsFlowFailure(err), errors.As(err, &registerErr):
		return ExitCodeAuthFailed
	case errors.As(err, &required),
		errors.As(err, &notConn),
		oauth.IsTerminalRefresh(err),
		mcpclient.IsAuthFailure(err):
		return ExitCodeAuthRequired
	default:
		return ExitCodeError
	}
}

// AuthRequiredError tells the user which login command to run.
type AuthRequiredError struct {
	ServerID string
	// Reason is optional.
	Reason error
}

func (e *AuthRequiredError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Authentication required for %s", e.ServerID)
	if e.Reason != nil {
		fmt.Fprintf(&sb, " (%v)", e.Reason)
	}
	fmt.Fprintf(&sb, "\n\nTo authenticate, run:\n  dayai login --server %s\n\nTo check the current state:\n  dayai status", e.ServerID)
	return sb.String()
}

func (e *AuthRequiredError) Unwrap() error { return e.Reason }

// ConnectionErrorType categorizes why an endpoint could not be reached.
type ConnectionErrorType int

const (
	ConnectionErrorUnknown ConnectionErrorType = iota
	ConnectionErrorTLS
	ConnectionErrorNetwork
	ConnectionErrorTimeout
	ConnectionErrorDNS
)

func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ConnectionError is a transport failure towards Endpoint.
type ConnectionError struct {
	Endpoint string
	Type     ConnectionErrorType
	Reason   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s reaching %s: %v", e.Type, e.Endpoint, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Reason }

var (
	tlsMarkers     = []string{"x509:", "certificate", "tls:", "TLS handshake"}
	timeoutMarkers = []string{"timeout", "deadline exceeded"}
	networkMarkers = []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"dial tcp",
		"connect:",
	}
)

// ClassifyConnectionError returns nil for nil errors and for failures that
// are not transport problems, such as auth failures and tool errors.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil || mcpclient.IsAuthFailure(err) {
		return nil
	}
	var toolErr *mcpclient.ToolError
	if errors.As(err, &toolErr) {
		return nil
	}

	connErr := &ConnectionError{Endpoint: endpoint, Reason: err}
	var dnsErr *net.DNSError
	switch {
	case isTLSError(err):
		connErr.Type = ConnectionErrorTLS
	case errors.As(err, &dnsErr):
		connErr.Type = ConnectionErrorDNS
	case isTimeoutError(err):
		connErr.Type = ConnectionErrorTimeout
	case containsAny(err.Error(), networkMarkers):
		connErr.Type = ConnectionErrorNetwork
	default:
		return nil
	}
	return connErr
}

func isTLSError(err error) bool {
	var (
		certErr        *x509.CertificateInvalidError
		hostErr        *x509.HostnameError
		unknownAuthErr *x509.UnknownAuthorityError
		systemRootsErr *x509.SystemRootsError
	)
	if errors.As(err, &certErr) || errors.As(err, &hostErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &systemRootsErr) {
		return true
	}
	return containsAny(err.Error(), tlsMarkers)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return containsAny(err.Error(), timeoutMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
