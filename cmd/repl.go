package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"dayai/internal/app"
	"dayai/internal/repl"
	"dayai/pkg/logging"
)

var _ repl.Backend = (*app.Application)(nil)

func newReplCmd(root *rootOptions) *cobra.Command {
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive tool shell",
		Long: `Start an interactive shell to list and call tools.

The shell reconnects stored sessions on start and follows credential changes
made by other dayai processes, so running 'dayai login' in another terminal
makes the new tools available without restarting.

Commands: help, tools [filter], call <tool> [json | key=value ...], status, exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := root.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			s.reconnect(ctx)

			history := filepath.Join(s.ConfigPath(), "repl_history")
			if noHistory {
				history = ""
			}
			shell := repl.New(s.Application, repl.Config{
				HistoryFile: history,
				Stdout:      cmd.OutOrStdout(),
			})

			if err := s.StartWatching(ctx, func() {
				shell.Notify("Credentials changed on disk, %d tools available.", len(s.Catalogue()))
			}); err != nil {
				logging.Warn("REPL", "Not following credential changes: %v", err)
			}
			defer s.StopWatching()

			return shell.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not read or write the history file")
	return cmd
}
