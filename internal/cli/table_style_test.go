package cli

import (
	"bytes"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
)

func TestPlainTableWriter_Render(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTableWriter(&buf)
	tw.SetHeaders("name", "source")
	tw.AppendRow("create_note", "local")
	tw.AppendRow("mcp__day-ai__search", "day-ai")
	tw.Render()

	want := "NAME                  SOURCE\n" +
		"create_note           local\n" +
		"mcp__day-ai__search   day-ai\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, tw.Len())
}

func TestPlainTableWriter_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTableWriter(&buf)
	tw.SetHeaders("a", "b")
	tw.SetNoHeaders(true)
	tw.Render()
	assert.Empty(t, buf.String(), "nothing to print without rows or headers")

	tw.AppendRow("x", "y")
	tw.Render()
	assert.Equal(t, "x   y\n", buf.String())
}

func TestPlainTableWriter_RaggedRows(t *testing.T) {
	var buf bytes.Buffer
	tw := NewPlainTableWriter(&buf)
	tw.SetHeaders("a", "b", "c")
	tw.AppendRow("1")
	tw.AppendRow("1", "2", "3", "4")
	tw.Render()

	assert.Equal(t, "A   B   C\n1\n1   2   3\n", buf.String())
}

func TestPlainTableWriter_IgnoresColourCodes(t *testing.T) {
	text.EnableColors()
	defer text.DisableColors()

	var buf bytes.Buffer
	tw := NewPlainTableWriter(&buf)
	tw.SetHeaders("status", "tools")
	tw.AppendRow(text.FgGreen.Sprint("ok"), "3")
	tw.Render()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)
	assert.Equal(t, "STATUS   TOOLS", string(lines[0]))
	assert.Equal(t, text.FgGreen.Sprint("ok")+"       3", string(lines[1]))
}
