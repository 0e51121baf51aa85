package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"dayai/internal/dispatch"
	"dayai/internal/mcpclient"
	"dayai/internal/notes"
	"dayai/pkg/auth"
	pkgstrings "dayai/pkg/strings"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
)

// ParseOutputFormat accepts "table" and "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (valid: table, json)", s)
	}
}

// Printer writes command output in the selected format.
type Printer struct {
	Out       io.Writer
	Format    OutputFormat
	NoHeaders bool
	// Now defaults to time.Now; expiry columns are relative to it.
	Now func() time.Time
}

// NewPrinter returns a table printer on out.
func NewPrinter(out io.Writer, format OutputFormat) *Printer {
	if format == "" {
		format = OutputFormatTable
	}
	return &Printer{Out: out, Format: format, Now: time.Now}
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Status prints one row per configured server.
func (p *Printer) Status(resp *auth.StatusResponse) error {
	if p.Format == OutputFormatJSON {
		return p.JSON(resp)
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleLight)
	if !p.NoHeaders {
		t.AppendHeader(table.Row{"Server", "Status", "Session", "Expires", "Refresh", "Tools", "Endpoint"})
	}

	var problems []string
	for _, s := range resp.Servers {
		refresh := "-"
		if s.Authenticated() || s.Status == auth.StatusExpired {
			refresh = formatBool(s.CanRefresh)
		}
		session := s.Session
		if session == "" {
			session = "-"
		}
		t.AppendRow(table.Row{
			s.ServerID,
			colorStatus(s.Status),
			session,
			p.formatExpiry(s.ExpiresAt),
			refresh,
			s.Tools,
			s.Endpoint,
		})
		if s.Error != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", s.ServerID, s.Error))
		}
	}
	t.Render()

	for _, problem := range problems {
		fmt.Fprintf(p.Out, "%s %s\n", text.FgRed.Sprint("!"), problem)
	}
	for _, s := range resp.Servers {
		if s.Status == auth.StatusAuthRequired || s.Status == auth.StatusExpired {
			fmt.Fprintf(p.Out, "Run 'dayai login --server %s' to authenticate.\n", s.ServerID)
		}
	}
	return nil
}

// Tools prints the tool catalogue.
func (p *Printer) Tools(specs []dispatch.ToolSpec) error {
	if p.Format == OutputFormatJSON {
		if specs == nil {
			specs = []dispatch.ToolSpec{}
		}
		return p.JSON(specs)
	}

	tw := NewPlainTableWriter(p.Out)
	tw.SetHeaders("name", "source", "args", "description")
	tw.SetNoHeaders(p.NoHeaders)
	for _, spec := range specs {
		source := "local"
		desc := spec.Description
		if server, _, ok := mcpclient.ParseToolName(spec.Name); ok {
			source = server
			desc = strings.TrimPrefix(desc, "["+server+"] ")
		}
		tw.AppendRow(
			spec.Name,
			source,
			countArgs(spec.InputSchema),
			pkgstrings.Truncate(desc, pkgstrings.DescriptionWidth),
		)
	}
	tw.Render()
	if tw.Len() == 0 {
		fmt.Fprintln(p.Out, "No tools available. Run 'dayai login' to connect a server.")
	}
	return nil
}

// Result prints a tool call outcome. Failures are printed too; the caller
// decides the exit status.
func (p *Printer) Result(res dispatch.Result) error {
	if p.Format == OutputFormatJSON {
		return p.JSON(res)
	}
	if !res.Success {
		fmt.Fprintf(p.Out, "%s %s\n", text.FgRed.Sprint("Error:"), res.Error)
		return nil
	}
	if s, ok := res.Result.(string); ok {
		fmt.Fprintln(p.Out, s)
		return nil
	}
	return p.JSON(res.Result)
}

// Notes prints a note listing.
func (p *Printer) Notes(list []notes.Note) error {
	if p.Format == OutputFormatJSON {
		if list == nil {
			list = []notes.Note{}
		}
		return p.JSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(p.Out, "No notes yet.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleLight)
	if !p.NoHeaders {
		t.AppendHeader(table.Row{"ID", "Title", "Updated", "Content"})
	}
	for _, n := range list {
		t.AppendRow(table.Row{
			n.ID,
			n.Title,
			n.UpdatedAt.Local().Format(time.DateTime),
			pkgstrings.Truncate(n.Content, 40),
		})
	}
	t.Render()
	return nil
}

func colorStatus(status string) string {
	switch status {
	case auth.StatusConnected:
		return text.FgGreen.Sprint(status)
	case auth.StatusAuthRequired, auth.StatusExpired:
		return text.FgYellow.Sprint(status)
	case auth.StatusError:
		return text.FgRed.Sprint(status)
	default:
		return text.FgHiBlack.Sprint(status)
	}
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (p *Printer) formatExpiry(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	remaining := at.Sub(now())
	if remaining > 0 {
		return "in " + humanDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", humanDuration(-remaining))
}

var durationUnits = []struct {
	size time.Duration
	name string
}{
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
}

func humanDuration(d time.Duration) string {
	for _, u := range durationUnits {
		if d < u.size {
			continue
		}
		n := int(d / u.size)
		if n == 1 {
			return "1 " + u.name
		}
		return fmt.Sprintf("%d %ss", n, u.name)
	}
	return "< 1 minute"
}

// countArgs renders "required/total" for an object schema.
func countArgs(schema json.RawMessage) string {
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if len(schema) == 0 || json.Unmarshal(schema, &s) != nil || len(s.Properties) == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", len(s.Required), len(s.Properties))
}
