package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration structure for dayai.
type Config struct {
	LogLevel   string         `yaml:"logLevel,omitempty"`
	Callback   CallbackConfig `yaml:"callback"`
	ClientName string         `yaml:"clientName,omitempty"` // client_name sent on dynamic registration
	Servers    []ServerConfig `yaml:"servers,omitempty"`
	NotesFile  string         `yaml:"notesFile,omitempty"`
}

// CallbackConfig configures the loopback listener that receives the
// authorization redirect.
type CallbackConfig struct {
	Host    string        `yaml:"host,omitempty"`
	Port    int           `yaml:"port,omitempty"`
	Path    string        `yaml:"path,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ServerConfig describes one OAuth-protected MCP server.
type ServerConfig struct {
	ID                   string   `yaml:"id"`
	Name                 string   `yaml:"name,omitempty"`
	BaseURL              string   `yaml:"baseUrl,omitempty"`
	Issuer               string   `yaml:"issuer,omitempty"`
	MCPEndpoint          string   `yaml:"mcpEndpoint,omitempty"`
	AuthEndpoint         string   `yaml:"authEndpoint,omitempty"`
	TokenEndpoint        string   `yaml:"tokenEndpoint,omitempty"`
	RegistrationEndpoint string   `yaml:"registrationEndpoint,omitempty"`
	RevocationEndpoint   string   `yaml:"revocationEndpoint,omitempty"`
	Scopes               []string `yaml:"scopes,omitempty"`
}

// DisplayName returns Name, or the ID when no name is configured.
func (s ServerConfig) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// deriveEndpoints fills empty endpoints from BaseURL using the Day AI path
// layout.
func (s *ServerConfig) deriveEndpoints() {
	if s.BaseURL == "" {
		return
	}
	base := strings.TrimRight(s.BaseURL, "/")
	fill := func(field *string, path string) {
		if *field == "" {
			*field = base + path
		}
	}
	fill(&s.MCPEndpoint, PathMCP)
	fill(&s.AuthEndpoint, PathAuthorize)
	fill(&s.TokenEndpoint, PathToken)
	fill(&s.RegistrationEndpoint, PathRegister)
	fill(&s.RevocationEndpoint, PathRevoke)
}

// rebase points every endpoint at baseURL.
func (s *ServerConfig) rebase(baseURL string) {
	s.BaseURL = baseURL
	s.MCPEndpoint = ""
	s.AuthEndpoint = ""
	s.TokenEndpoint = ""
	s.RegistrationEndpoint = ""
	s.RevocationEndpoint = ""
	s.deriveEndpoints()
}

// Server returns the server with the given ID.
func (c Config) Server(id string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// DefaultServer returns the first configured server.
func (c Config) DefaultServer() (ServerConfig, bool) {
	if len(c.Servers) == 0 {
		return ServerConfig{}, false
	}
	return c.Servers[0], true
}
