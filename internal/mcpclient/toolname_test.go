package mcpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolName_RoundTrip(t *testing.T) {
	tests := []struct {
		server string
		tool   string
		want   string
	}{
		{"day-ai", "search", "mcp__day-ai__search"},
		{"day-ai", "get__context", "mcp__day-ai__get__context"},
		{"crm", "create_or_update_person_organization", "mcp__crm__create_or_update_person_organization"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			name := FormatToolName(tt.server, tt.tool)
			assert.Equal(t, tt.want, name)

			server, tool, ok := ParseToolName(name)
			assert.True(t, ok)
			assert.Equal(t, tt.server, server)
			assert.Equal(t, tt.tool, tool)
			assert.True(t, IsMCPToolName(name))
		})
	}
}

func TestParseToolName_Invalid(t *testing.T) {
	for _, name := range []string{
		"",
		"search",
		"create_note",
		"mcp__",
		"mcp__day-ai",
		"mcp__day-ai__",
		"mcp____search",
		"MCP__day-ai__search",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, ok := ParseToolName(name)
			assert.False(t, ok)
			assert.False(t, IsMCPToolName(name))
		})
	}
}
