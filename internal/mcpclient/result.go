package mcpclient

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DecodeResult converts a tool result into a Go value. A single text block
// is decoded as JSON when it is valid JSON and returned as a string
// otherwise. Any other shape is returned as the content slice, or the
// structured content when there is no content at all.
func DecodeResult(result *mcp.CallToolResult) any {
	if result == nil {
		return nil
	}
	if len(result.Content) == 1 {
		if text, ok := mcp.AsTextContent(result.Content[0]); ok {
			return decodeText(text.Text)
		}
	}
	if len(result.Content) == 0 && result.StructuredContent != nil {
		return result.StructuredContent
	}
	return result.Content
}

func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return text
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return text
	}
	return v
}

// ErrorMessage joins the text blocks of an isError result.
func ErrorMessage(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "unknown error"
	}
	return strings.Join(parts, "\n")
}
