package mcpclient

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestDecodeResult(t *testing.T) {
	t.Run("JSON text is decoded", func(t *testing.T) {
		got := DecodeResult(mcp.NewToolResultText(`{"results":[{"id":"org_1","name":"Acme"}]}`))
		assert.Equal(t, map[string]any{
			"results": []any{map[string]any{"id": "org_1", "name": "Acme"}},
		}, got)
	})

	t.Run("plain text is returned as is", func(t *testing.T) {
		got := DecodeResult(mcp.NewToolResultText("Found 3 contacts at Acme"))
		assert.Equal(t, "Found 3 contacts at Acme", got)
	})

	t.Run("truncated JSON stays text", func(t *testing.T) {
		got := DecodeResult(mcp.NewToolResultText(`{"results":[`))
		assert.Equal(t, `{"results":[`, got)
	})

	t.Run("empty text stays text", func(t *testing.T) {
		assert.Equal(t, "", DecodeResult(mcp.NewToolResultText("")))
	})

	t.Run("several blocks are returned as content", func(t *testing.T) {
		result := &mcp.CallToolResult{Content: []mcp.Content{
			mcp.NewTextContent("one"),
			mcp.NewTextContent("two"),
		}}
		got, ok := DecodeResult(result).([]mcp.Content)
		assert.True(t, ok)
		assert.Len(t, got, 2)
	})

	t.Run("structured content without blocks", func(t *testing.T) {
		result := &mcp.CallToolResult{StructuredContent: map[string]any{"ok": true}}
		assert.Equal(t, map[string]any{"ok": true}, DecodeResult(result))
	})

	t.Run("nil result", func(t *testing.T) {
		assert.Nil(t, DecodeResult(nil))
	})
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "organization not found", ErrorMessage(mcp.NewToolResultError("organization not found")))
	assert.Equal(t, "unknown error", ErrorMessage(&mcp.CallToolResult{IsError: true}))
}
