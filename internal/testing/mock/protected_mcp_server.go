package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ProtectedMCPServerConfig configures a bearer-protected MCP server.
type ProtectedMCPServerConfig struct {
	// Name is reported as the server implementation name.
	Name string

	// OAuthServer validates bearer tokens. When nil, any token equal to
	// StaticToken is accepted.
	OAuthServer *OAuthServer
	StaticToken string

	// Tools exposed to authenticated clients.
	Tools []server.ServerTool
}

// ProtectedMCPServer is a streamable-HTTP MCP server behind a bearer check.
// The middleware counts the JSON-RPC methods it lets through and can be
// told to reject the next tools/call requests with 401 regardless of the
// token.
type ProtectedMCPServer struct {
	config ProtectedMCPServerConfig
	server *httptest.Server

	InitializeCalls atomic.Int32
	ListToolsCalls  atomic.Int32
	// ToolCallAttempts counts tools/call requests including rejected ones.
	ToolCallAttempts atomic.Int32
	Unauthorized     atomic.Int32

	// Reject401 is the number of upcoming tools/call requests to reject.
	Reject401 atomic.Int32
}

// NewProtectedMCPServer starts the server. Close it when done.
func NewProtectedMCPServer(config ProtectedMCPServerConfig) *ProtectedMCPServer {
	if config.Name == "" {
		config.Name = "mock-day-ai"
	}

	mcpServer := server.NewMCPServer(config.Name, "1.0.0", server.WithToolCapabilities(false))
	mcpServer.AddTools(config.Tools...)

	s := &ProtectedMCPServer{config: config}

	mux := http.NewServeMux()
	mux.Handle("/api/mcp", s.protect(server.NewStreamableHTTPServer(mcpServer)))
	s.server = httptest.NewServer(mux)
	return s
}

// Endpoint is the MCP endpoint URL.
func (s *ProtectedMCPServer) Endpoint() string { return s.server.URL + "/api/mcp" }

// Close shuts the server down.
func (s *ProtectedMCPServer) Close() { s.server.Close() }

func (s *ProtectedMCPServer) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// session teardown carries no credentials
		if r.Method == http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		method := ""
		if r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var envelope struct {
				Method string `json:"method"`
			}
			_ = json.Unmarshal(body, &envelope)
			method = envelope.Method
		}

		if method == "tools/call" {
			s.ToolCallAttempts.Add(1)
			if s.takeReject() {
				s.challenge(w, "invalid_token", "The access token was revoked")
				return
			}
		}

		if !s.authorized(ExtractBearerToken(r.Header.Get("Authorization"))) {
			s.challenge(w, "invalid_token", "The access token is invalid or expired")
			return
		}

		switch method {
		case "initialize":
			s.InitializeCalls.Add(1)
		case "tools/list":
			s.ListToolsCalls.Add(1)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *ProtectedMCPServer) takeReject() bool {
	for {
		n := s.Reject401.Load()
		if n <= 0 {
			return false
		}
		if s.Reject401.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (s *ProtectedMCPServer) authorized(token string) bool {
	if token == "" {
		return false
	}
	if s.config.OAuthServer != nil {
		return s.config.OAuthServer.ValidateToken(token)
	}
	return token == s.config.StaticToken
}

func (s *ProtectedMCPServer) challenge(w http.ResponseWriter, code, description string) {
	s.Unauthorized.Add(1)
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer realm="%s", error="%s", error_description="%s", resource_metadata="%s/.well-known/oauth-protected-resource"`,
		s.config.Name, code, description, s.server.URL))
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}

// TextTool returns a tool that answers every call with text.
func TextTool(name, description, text string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("query", mcp.Description("Free text query")),
		),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(text), nil
		},
	}
}

// EchoTool returns a tool that answers with its arguments encoded as JSON.
func EchoTool(name string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name, mcp.WithDescription("Echoes its arguments")),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := json.Marshal(req.GetArguments())
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(string(out)), nil
		},
	}
}

// FailingTool returns a tool whose result is flagged isError.
func FailingTool(name, message string) server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool(name, mcp.WithDescription("Always fails")),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError(message), nil
		},
	}
}
