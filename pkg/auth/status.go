package auth

import "time"

// Status values reported per server.
const (
	StatusConnected    = "connected"
	StatusAuthRequired = "auth_required"
	StatusExpired      = "expired"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// StatusResponse represents the structured authentication state.
type StatusResponse struct {
	Servers []ServerAuthStatus `json:"servers"`
}

// ServerAuthStatus describes the authentication state for one MCP server.
type ServerAuthStatus struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`

	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Session is the connection state of the live MCP session, if any.
	Session string `json:"session,omitempty"`

	Registered bool      `json:"registered"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	CanRefresh bool      `json:"can_refresh"`
	Tools      int       `json:"tools"`

	// Error is present when Status == "error"
	Error string `json:"error,omitempty"`
}

// Authenticated reports whether the server holds usable credentials.
func (s ServerAuthStatus) Authenticated() bool {
	return s.Status == StatusConnected || s.Status == StatusDisconnected
}
