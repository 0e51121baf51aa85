package config

import "time"

const (
	// DefaultServerID identifies the Day AI server in config and state.
	DefaultServerID = "day-ai"

	// DefaultBaseURL is the production Day AI deployment.
	DefaultBaseURL = "https://day.ai"

	DefaultClientName = "Day AI SDK"

	DefaultCallbackHost    = "127.0.0.1"
	DefaultCallbackPort    = 31338
	DefaultCallbackPath    = "/callback"
	DefaultCallbackTimeout = 5 * time.Minute
)

// Endpoint paths relative to a server's base URL.
const (
	PathMCP       = "/api/mcp"
	PathAuthorize = "/integrations/authorize"
	PathToken     = "/api/oauth"
	PathRegister  = "/api/oauth/register"
	PathRevoke    = "/api/oauth/revoke"
)

// DefaultScopes are requested when a server configures none.
var DefaultScopes = []string{
	"native_organization:write",
	"native_contact:write",
	"assistant:*:use",
}

// GetDefaultConfig returns the built-in configuration: one Day AI server
// and the loopback callback on 127.0.0.1:31338.
func GetDefaultConfig() Config {
	server := ServerConfig{
		ID:      DefaultServerID,
		Name:    "Day AI",
		BaseURL: DefaultBaseURL,
		Scopes:  append([]string(nil), DefaultScopes...),
	}
	server.deriveEndpoints()

	return Config{
		LogLevel: "info",
		Callback: CallbackConfig{
			Host:    DefaultCallbackHost,
			Port:    DefaultCallbackPort,
			Path:    DefaultCallbackPath,
			Timeout: DefaultCallbackTimeout,
		},
		ClientName: DefaultClientName,
		Servers:    []ServerConfig{server},
	}
}
