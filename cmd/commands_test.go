package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayai/internal/cli"
	"dayai/internal/dispatch"
	"dayai/internal/mcpclient"
	"dayai/pkg/oauth"
)

// runDayai executes the CLI against an isolated configuration directory.
func runDayai(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DAYAI_BASE_URL", "")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config-path", dir, "-q"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestToolsCommand_LocalTools(t *testing.T) {
	stdout, _, err := runDayai(t, t.TempDir(), "tools", "-o", "json")
	require.NoError(t, err)

	var specs []dispatch.ToolSpec
	require.NoError(t, json.Unmarshal([]byte(stdout), &specs))

	var names []string
	for _, s := range specs {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"create_note", "read_note", "update_note", "search_notes", "list_notes"}, names)
}

func TestToolsCommand_Table(t *testing.T) {
	stdout, _, err := runDayai(t, t.TempDir(), "tools")
	require.NoError(t, err)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "create_note")
	assert.Contains(t, stdout, "local")
}

func TestNotesWorkflow(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := runDayai(t, dir, "notes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No notes yet.")

	stdout, _, err = runDayai(t, dir, "call", "create_note",
		"--args", `{"title": "Q3 renewal", "content": "Acme renews in May"}`, "-o", "json")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "create_note", res["toolName"])

	stdout, _, err = runDayai(t, dir, "notes", "-o", "json")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Q3 renewal", list[0]["title"])

	stdout, _, err = runDayai(t, dir, "notes", "search", "acme")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SNIPPET")
	assert.Contains(t, stdout, "Q3 renewal")

	stdout, _, err = runDayai(t, dir, "notes", "search", "globex")
	require.NoError(t, err)
	assert.Contains(t, stdout, `No notes match "globex".`)
}

func TestCallCommand_RemoteWithoutLogin(t *testing.T) {
	_, _, err := runDayai(t, t.TempDir(), "call", "mcp__day-ai__search", "--args", `{"query": "Acme"}`)
	require.Error(t, err)

	var authErr *cli.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "day-ai", authErr.ServerID)
	assert.Equal(t, cli.ExitCodeAuthRequired, cli.ExitCode(err))
}

func TestCallCommand_UnknownLocalTool(t *testing.T) {
	_, _, err := runDayai(t, t.TempDir(), "call", "bogus")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCodeError, cli.ExitCode(err))
}

func TestCallCommand_InvalidArgs(t *testing.T) {
	_, _, err := runDayai(t, t.TempDir(), "call", "list_notes", "--args", "[1, 2]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--args must be a JSON object")
}

func TestStatusCommand_NotLoggedIn(t *testing.T) {
	stdout, _, err := runDayai(t, t.TempDir(), "status", "-o", "json")
	require.NoError(t, err)

	var resp struct {
		Servers []struct {
			ServerID string `json:"server_id"`
			Status   string `json:"status"`
		} `json:"servers"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Servers, 1)
	assert.Equal(t, "day-ai", resp.Servers[0].ServerID)
	assert.Equal(t, "auth_required", resp.Servers[0].Status)
}

func TestUnsupportedOutputFormat(t *testing.T) {
	_, _, err := runDayai(t, t.TempDir(), "tools", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestShowMetrics(t *testing.T) {
	_, stderr, err := runDayai(t, t.TempDir(), "--show-metrics", "call", "list_notes")
	require.NoError(t, err)
	assert.Contains(t, stderr, "METRIC")
}

func TestParseArgsFlag(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]any{}},
		{name: "whitespace", raw: "  ", want: map[string]any{}},
		{name: "null", raw: "null", want: map[string]any{}},
		{name: "object", raw: `{"query": "Acme", "limit": 5}`, want: map[string]any{"query": "Acme", "limit": float64(5)}},
		{name: "array", raw: `[1]`, wantErr: true},
		{name: "garbage", raw: `query=Acme`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgsFlag(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallError(t *testing.T) {
	t.Run("local failure keeps message", func(t *testing.T) {
		err := callError(dispatch.Result{ToolName: "read_note", Error: "Note not found"})
		assert.EqualError(t, err, "Note not found")
		assert.Equal(t, cli.ExitCodeError, cli.ExitCode(err))
	})

	t.Run("remote not connected needs login", func(t *testing.T) {
		cause := &mcpclient.NotConnectedError{ServerID: "day-ai"}
		err := callError(dispatch.Result{ToolName: "mcp__day-ai__search", Error: cause.Error(), Err: cause})

		var authErr *cli.AuthRequiredError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "day-ai", authErr.ServerID)
		assert.Equal(t, cli.ExitCodeAuthRequired, cli.ExitCode(err))
	})

	t.Run("remote terminal refresh needs login", func(t *testing.T) {
		cause := &oauth.RefreshError{Reason: oauth.RefreshNoToken}
		err := callError(dispatch.Result{ToolName: "mcp__day-ai__search", Err: cause})
		assert.Equal(t, cli.ExitCodeAuthRequired, cli.ExitCode(err))
	})

	t.Run("remote tool error stays generic", func(t *testing.T) {
		err := callError(dispatch.Result{ToolName: "mcp__day-ai__search", Err: errors.New("rate limited")})
		assert.EqualError(t, err, "rate limited")
		assert.Equal(t, cli.ExitCodeError, cli.ExitCode(err))
	})
}
