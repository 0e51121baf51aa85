package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dayai/internal/mcpclient"
	"dayai/pkg/logging"
)

// RemoteTools is the part of mcpclient.Manager the dispatcher needs.
type RemoteTools interface {
	AllTools() []mcpclient.ToolInfo
	CallTool(ctx context.Context, serverID, tool string, args map[string]any) (any, error)
}

// ToolSpec describes a tool in the shape LLM tool-use APIs expect.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Call is a single tool invocation.
type Call struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Result is the outcome of a Call. Failures are reported in Error rather
// than as a Go error so they can be handed back to the caller verbatim.
type Result struct {
	CallID   string `json:"toolCallId,omitempty"`
	ToolName string `json:"toolName"`
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`

	// Err keeps the underlying error for callers that classify failures.
	Err error `json:"-"`
}

// Dispatcher routes namespaced mcp__<server>__<tool> names to the remote
// manager and everything else to the registered local tools.
type Dispatcher struct {
	remote RemoteTools
	local  map[string]server.ServerTool
	order  []string
}

// New creates a dispatcher. remote may be nil when only local tools are
// available.
func New(remote RemoteTools, local ...server.ServerTool) *Dispatcher {
	d := &Dispatcher{
		remote: remote,
		local:  make(map[string]server.ServerTool, len(local)),
	}
	for _, st := range local {
		if _, dup := d.local[st.Tool.Name]; !dup {
			d.order = append(d.order, st.Tool.Name)
		}
		d.local[st.Tool.Name] = st
	}
	return d
}

// Catalogue lists the local tools in registration order followed by the
// remote tools sorted by qualified name. Remote descriptions are prefixed
// with the server ID.
func (d *Dispatcher) Catalogue() []ToolSpec {
	specs := make([]ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		st := d.local[name]
		specs = append(specs, ToolSpec{
			Name:        name,
			Description: st.Tool.Description,
			InputSchema: localSchema(st.Tool),
		})
	}

	if d.remote == nil {
		return specs
	}
	remote := d.remote.AllTools()
	sort.Slice(remote, func(i, j int) bool { return remote[i].QualifiedName() < remote[j].QualifiedName() })
	for _, info := range remote {
		schema := info.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		specs = append(specs, ToolSpec{
			Name:        info.QualifiedName(),
			Description: fmt.Sprintf("[%s] %s", info.ServerID, info.Description),
			InputSchema: schema,
		})
	}
	return specs
}

func localSchema(tool mcp.Tool) json.RawMessage {
	if tool.RawInputSchema != nil {
		return tool.RawInputSchema
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

// Execute runs a call and never panics on unknown names; the outcome is
// always a Result.
func (d *Dispatcher) Execute(ctx context.Context, call Call) Result {
	start := time.Now()
	res := d.execute(ctx, call)
	res.CallID = call.ID
	res.ToolName = call.Name

	if res.Success {
		logging.Debug("Dispatcher", "Tool %s succeeded in %s", call.Name, time.Since(start).Round(time.Millisecond))
	} else {
		logging.Debug("Dispatcher", "Tool %s failed: %s", call.Name, res.Error)
	}
	return res
}

func (d *Dispatcher) execute(ctx context.Context, call Call) Result {
	if serverID, tool, ok := mcpclient.ParseToolName(call.Name); ok {
		if d.remote == nil {
			err := &mcpclient.NotConnectedError{ServerID: serverID}
			return Result{Error: err.Error(), Err: err}
		}
		value, err := d.remote.CallTool(ctx, serverID, tool, call.Arguments)
		if err != nil {
			return Result{Error: err.Error(), Err: err}
		}
		return Result{Success: true, Result: value}
	}

	st, ok := d.local[call.Name]
	if !ok {
		err := fmt.Errorf("unknown tool: %s", call.Name)
		return Result{Error: err.Error(), Err: err}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Name
	req.Params.Arguments = call.Arguments
	if req.Params.Arguments == nil {
		req.Params.Arguments = map[string]any{}
	}

	out, err := st.Handler(ctx, req)
	if err != nil {
		return Result{Error: err.Error(), Err: err}
	}
	if out == nil {
		return Result{Success: true}
	}
	if out.IsError {
		msg := mcpclient.ErrorMessage(out)
		return Result{Error: msg, Err: &mcpclient.ToolError{Server: "local", Tool: call.Name, Message: msg}}
	}
	return Result{Success: true, Result: mcpclient.DecodeResult(out)}
}
