package mcpclient

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"dayai/pkg/oauth"
)

// ConnectionState is the lifecycle state of a server connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	// StateStale is a connected server whose access token is within the
	// refresh threshold of its expiry.
	StateStale
	StateRefreshing
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStale:
		return "stale"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ToolInfo describes one tool offered by a connected server.
type ToolInfo struct {
	ServerID    string          `json:"server_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// QualifiedName is the namespaced tool name, see FormatToolName.
func (t ToolInfo) QualifiedName() string {
	return FormatToolName(t.ServerID, t.Name)
}

func toolInfoFromMCP(serverID string, tool mcp.Tool) ToolInfo {
	info := ToolInfo{ServerID: serverID, Name: tool.Name, Description: tool.Description}
	if len(tool.RawInputSchema) > 0 {
		info.InputSchema = tool.RawInputSchema
		return info
	}
	if schema, err := json.Marshal(tool.InputSchema); err == nil {
		info.InputSchema = schema
	}
	return info
}

// connection is the manager's record of one server. All fields except
// limiter are guarded by Manager.mu.
type connection struct {
	serverID      string
	endpointURL   string
	tokenEndpoint string
	registration  oauth.ClientRegistration
	tokens        *oauth.TokenSet
	tools         []ToolInfo
	state         ConnectionState
	client        MCPClient
	limiter       *rate.Limiter
}
