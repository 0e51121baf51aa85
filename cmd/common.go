package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dayai/internal/app"
	"dayai/internal/cli"
	"dayai/internal/dispatch"
	"dayai/internal/instrumentation"
	"dayai/internal/mcpclient"
	"dayai/pkg/logging"
	"dayai/pkg/oauth"
)

// metricsFlushTimeout bounds the final metrics collection.
const metricsFlushTimeout = 2 * time.Second

// session is an Application opened for one command invocation.
type session struct {
	*app.Application

	opts      *rootOptions
	stderr    io.Writer
	collector *instrumentation.Collector
}

// openSession builds the application for cmd. configure may adjust the
// application config before services are wired.
func (o *rootOptions) openSession(cmd *cobra.Command, configure ...func(*app.Config)) (*session, error) {
	stderr := cmd.ErrOrStderr()

	cfg := app.NewConfig(o.debug, o.configPath)
	cfg.LogOutput = stderr
	cfg.Version = appVersion
	cfg.OnAuthURL = func(url string) {
		fmt.Fprintf(stderr, "Opening your browser to authorize dayai.\nIf it does not open, visit:\n\n  %s\n\n", url)
	}

	var collector *instrumentation.Collector
	if o.showMetrics {
		metrics, c, err := instrumentation.NewCollected()
		if err != nil {
			return nil, err
		}
		cfg.Metrics = metrics
		collector = c
	}

	for _, fn := range configure {
		fn(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}
	return &session{
		Application: application,
		opts:        o,
		stderr:      stderr,
		collector:   collector,
	}, nil
}

// Close disconnects all sessions and prints metrics if requested.
func (s *session) Close() {
	s.Application.Close()
	if s.collector == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
	defer cancel()
	defer logging.BestEffort("Metrics", "shutdown", func() error { return s.collector.Shutdown(ctx) })

	samples, err := s.collector.Samples(ctx)
	if err != nil {
		logging.Warn("Metrics", "%v", err)
		return
	}
	tw := cli.NewPlainTableWriter(s.stderr)
	tw.SetHeaders("metric", "value", "count", "unit")
	for _, sample := range samples {
		count := "-"
		if sample.Count > 0 {
			count = fmt.Sprint(sample.Count)
		}
		tw.AppendRow(sample.Name, fmt.Sprintf("%g", sample.Value), count, sample.Unit)
	}
	tw.Render()
}

// reconnect restores the sessions persisted by earlier logins. Failures are
// reported as warnings; the affected servers stay unavailable.
func (s *session) reconnect(ctx context.Context) []app.ReconnectResult {
	var results []app.ReconnectResult
	_ = cli.WithSpinner(s.stderr, s.opts.quiet, "Connecting to MCP servers...", func() error {
		results = s.Reconnect(ctx)
		return nil
	})

	for _, res := range results {
		if res.Err == nil || s.opts.quiet {
			continue
		}
		msg := fmt.Sprintf("%s is unavailable: %v", res.ServerID, res.Err)
		if oauth.IsTerminalRefresh(res.Err) || mcpclient.IsAuthFailure(res.Err) {
			msg = fmt.Sprintf("%s needs a new login (run 'dayai login --server %s')", res.ServerID, res.ServerID)
		} else if connErr := cli.ClassifyConnectionError(res.Err, res.ServerID); connErr != nil {
			msg = fmt.Sprintf("%s is unavailable: %s", res.ServerID, connErr.Type)
		}
		fmt.Fprintln(s.stderr, cli.Warning(msg))
	}
	return results
}

func newPrinter(cmd *cobra.Command, output string) (*cli.Printer, error) {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(cmd.OutOrStdout(), format), nil
}

// parseArgsFlag decodes the --args JSON object of "dayai call".
func parseArgsFlag(raw string) (map[string]any, error) {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// callError turns a failed dispatch result into an error. Failures of
// remote tools that need a new login become *cli.AuthRequiredError.
func callError(res dispatch.Result) error {
	err := res.Err
	if err == nil {
		err = errors.New(res.Error)
	}

	serverID, _, remote := mcpclient.ParseToolName(res.ToolName)
	if !remote {
		return err
	}
	var notConn *mcpclient.NotConnectedError
	if errors.As(err, &notConn) || oauth.IsTerminalRefresh(err) || mcpclient.IsAuthFailure(err) {
		return &cli.AuthRequiredError{ServerID: serverID, Reason: err}
	}
	return err
}
