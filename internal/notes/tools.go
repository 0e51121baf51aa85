package notes

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Local tool names.
const (
	ToolCreateNote  = "create_note"
	ToolReadNote    = "read_note"
	ToolUpdateNote  = "update_note"
	ToolSearchNotes = "search_notes"
	ToolListNotes   = "list_notes"
)

// Tools exposes the store as MCP tools. The handlers answer with JSON text
// results and report bad input or missing notes as tool errors.
func Tools(store *Store) []server.ServerTool {
	h := &handlers{store: store}
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolCreateNote,
				mcp.WithDescription("Create a new note with the specified title and content."),
				mcp.WithString("title", mcp.Required(), mcp.Description("The title for the new note")),
				mcp.WithString("content", mcp.Description("The content for the new note (optional)")),
			),
			Handler: h.create,
		},
		{
			Tool: mcp.NewTool(ToolReadNote,
				mcp.WithDescription("Read the full content of a note by its ID or title."),
				mcp.WithString("id", mcp.Description("The ID of the note to read (optional if title provided)")),
				mcp.WithString("title", mcp.Description("The title of the note to read (optional if id provided)")),
			),
			Handler: h.read,
		},
		{
			Tool: mcp.NewTool(ToolUpdateNote,
				mcp.WithDescription("Replace the entire content of a note, and optionally its title."),
				mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the note to update")),
				mcp.WithString("content", mcp.Required(), mcp.Description("The new content for the note")),
				mcp.WithString("title", mcp.Description("A new title for the note (optional)")),
			),
			Handler: h.update,
		},
		{
			Tool: mcp.NewTool(ToolSearchNotes,
				mcp.WithDescription("Search through all notes by title or content. Returns matching notes with snippets."),
				mcp.WithString("query", mcp.Required(), mcp.Description("The search query to match against note titles and content")),
			),
			Handler: h.search,
		},
		{
			Tool: mcp.NewTool(ToolListNotes,
				mcp.WithDescription("List all notes, newest first."),
			),
			Handler: h.list,
		},
	}
}

type handlers struct {
	store *Store
}

func (h *handlers) create(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := h.store.Create(title, req.GetString("content", ""))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to create note", err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{
		"message": "Note created successfully",
		"noteId":  note.ID,
		"title":   note.Title,
	})
}

func (h *handlers) read(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	title := req.GetString("title", "")

	var (
		note Note
		err  error
	)
	switch {
	case id != "":
		note, err = h.store.Get(id)
	case title != "":
		note, err = h.store.FindByTitle(title)
	default:
		return mcp.NewToolResultError("either id or title is required"), nil
	}
	if err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultJSON(note)
}

func (h *handlers) update(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var title *string
	if t, ok := req.GetArguments()["title"].(string); ok && t != "" {
		title = &t
	}

	note, err := h.store.Update(id, content, title)
	if err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{
		"message": "Note updated successfully",
		"noteId":  note.ID,
		"title":   note.Title,
	})
}

func (h *handlers) search(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := h.store.Search(query)
	if err != nil {
		return storeError(err), nil
	}
	return mcp.NewToolResultJSON(map[string]any{
		"matches": matches,
		"count":   len(matches),
	})
}

func (h *handlers) list(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := h.store.List()
	if err != nil {
		return storeError(err), nil
	}
	type summary struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		UpdatedAt string `json:"updatedAt"`
	}
	out := make([]summary, 0, len(notes))
	for _, n := range notes {
		out = append(out, summary{ID: n.ID, Title: n.Title, UpdatedAt: n.UpdatedAt.Format(time.RFC3339)})
	}
	return mcp.NewToolResultJSON(map[string]any{
		"notes": out,
		"count": len(out),
	})
}

func storeError(err error) *mcp.CallToolResult {
	if errors.Is(err, ErrNotFound) {
		return mcp.NewToolResultError("Note not found")
	}
	return mcp.NewToolResultErrorFromErr("notes store failed", err)
}
