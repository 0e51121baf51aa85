package mcpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"dayai/pkg/logging"
)

// MCPClient is one initialized MCP session.
type MCPClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// ClientConfig describes the session a ClientFactory should open.
type ClientConfig struct {
	EndpointURL string
	// AccessToken is sent as "Authorization: Bearer <token>".
	AccessToken string
	HTTPClient  *http.Client
	ClientInfo  mcp.Implementation
}

// ClientFactory opens and initializes an MCP session.
type ClientFactory func(ctx context.Context, cfg ClientConfig) (MCPClient, error)

var _ MCPClient = (*streamableClient)(nil)

// streamableClient is an MCPClient over the streamable-HTTP transport.
type streamableClient struct {
	client *client.Client
}

// NewStreamableHTTPClient is the default ClientFactory. It performs the
// initialize handshake before returning; a 401 during the handshake comes
// back as an error wrapping *HTTPStatusError.
func NewStreamableHTTPClient(ctx context.Context, cfg ClientConfig) (MCPClient, error) {
	logging.Debug("StreamableHTTPClient", "Creating StreamableHTTP client for URL: %s", cfg.EndpointURL)

	opts := []transport.StreamableHTTPCOption{
		transport.WithHTTPBasicClient(wrapHTTPClient(cfg.HTTPClient)),
	}
	if cfg.AccessToken != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.AccessToken,
		}))
	}

	mcpClient, err := client.NewStreamableHttpClient(cfg.EndpointURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      cfg.ClientInfo,
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		logging.BestEffort("StreamableHTTPClient", "close after failed initialize", mcpClient.Close)
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	logging.Debug("StreamableHTTPClient", "StreamableHTTP client initialized. Server: %s, Version: %s, Protocol: %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version, initResult.ProtocolVersion)

	return &streamableClient{client: mcpClient}, nil
}

func (c *streamableClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

func (c *streamableClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}
	return result, nil
}

func (c *streamableClient) Close() error {
	return c.client.Close()
}
