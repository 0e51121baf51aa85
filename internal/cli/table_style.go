package cli

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

// PlainTableWriter renders borderless, kubectl-style columns that are easy
// to grep. Cell widths ignore ANSI colour sequences, so coloured status
// cells stay aligned.
type PlainTableWriter struct {
	headers     []string
	rows        [][]string
	widths      []int
	padding     int
	showHeaders bool
	out         io.Writer
}

// NewPlainTableWriter returns a writer that prints headers unless
// SetNoHeaders(true) is called.
func NewPlainTableWriter(out io.Writer) *PlainTableWriter {
	return &PlainTableWriter{
		padding:     3,
		showHeaders: true,
		out:         out,
	}
}

// SetHeaders sets the columns. Headers are upper-cased.
func (w *PlainTableWriter) SetHeaders(headers ...string) {
	w.headers = make([]string, len(headers))
	w.widths = make([]int, len(headers))
	for i, h := range headers {
		w.headers[i] = strings.ToUpper(h)
		w.widths[i] = text.StringWidthWithoutEscSequences(w.headers[i])
	}
}

// SetNoHeaders suppresses the header row.
func (w *PlainTableWriter) SetNoHeaders(noHeaders bool) {
	w.showHeaders = !noHeaders
}

// AppendRow adds a row. Missing cells are blank and extra cells are dropped.
func (w *PlainTableWriter) AppendRow(cells ...string) {
	row := make([]string, len(w.headers))
	for i := range row {
		if i >= len(cells) {
			continue
		}
		row[i] = cells[i]
		if width := text.StringWidthWithoutEscSequences(cells[i]); width > w.widths[i] {
			w.widths[i] = width
		}
	}
	w.rows = append(w.rows, row)
}

// Len returns the number of data rows.
func (w *PlainTableWriter) Len() int { return len(w.rows) }

// Render writes the table.
func (w *PlainTableWriter) Render() {
	if len(w.headers) == 0 || (len(w.rows) == 0 && !w.showHeaders) {
		return
	}
	if w.showHeaders {
		w.writeRow(w.headers)
	}
	for _, row := range w.rows {
		w.writeRow(row)
	}
}

func (w *PlainTableWriter) writeRow(row []string) {
	var sb strings.Builder
	for i, cell := range row {
		sb.WriteString(cell)
		if i == len(row)-1 {
			break
		}
		gap := w.widths[i] - text.StringWidthWithoutEscSequences(cell) + w.padding
		sb.WriteString(strings.Repeat(" ", gap))
	}
	io.WriteString(w.out, strings.TrimRight(sb.String(), " ")+"\n")
}
