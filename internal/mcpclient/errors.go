package mcpclient

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"dayai/pkg/oauth"
)

// HTTPStatusError is produced by the connection transport for responses the
// MCP library would otherwise try to decode, most importantly 401.
type HTTPStatusError struct {
	StatusCode int
	// Challenge is the parsed WWW-Authenticate header, if any.
	Challenge *oauth.AuthChallenge
}

func (e *HTTPStatusError) Error() string {
	if e.Challenge != nil && e.Challenge.Error != "" {
		return fmt.Sprintf("MCP server responded with status %d (%s)", e.StatusCode, e.Challenge.Error)
	}
	return fmt.Sprintf("MCP server responded with status %d", e.StatusCode)
}

// AuthFailureError is returned when the server rejects the bearer token.
// Retried is set when the failure persisted after a refresh and one retry.
type AuthFailureError struct {
	ServerID string
	Retried  bool
	Err      error
}

func (e *AuthFailureError) Error() string {
	if e.Retried {
		return fmt.Sprintf("authentication with %s failed after token refresh: %v", e.ServerID, e.Err)
	}
	return fmt.Sprintf("authentication with %s failed: %v", e.ServerID, e.Err)
}

func (e *AuthFailureError) Unwrap() error { return e.Err }

// NotConnectedError is returned for operations on an unknown server.
type NotConnectedError struct {
	ServerID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("MCP server %q is not connected", e.ServerID)
}

// ToolError is a tool result flagged with isError.
type ToolError struct {
	Server  string
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s on %s returned an error: %s", e.Tool, e.Server, e.Message)
}

// status401 matches a bare 401 but not a port or ID that contains it.
var status401 = regexp.MustCompile(`(^|[^0-9])401([^0-9]|$)`)

var authFailureMarkers = []string{
	"unauthorized",
	"invalid token",
	"invalid_token",
	"token expired",
	"authentication",
}

// IsAuthFailure reports whether err means the bearer token was rejected.
// Structured errors are checked first; the message match covers transports
// that only surface a string.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	var authErr *AuthFailureError
	if errors.As(err, &authErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 401
	}

	msg := strings.ToLower(err.Error())
	if status401.MatchString(msg) {
		return true
	}
	for _, marker := range authFailureMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
