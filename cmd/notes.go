package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dayai/internal/cli"
	pkgstrings "dayai/pkg/strings"
)

func newNotesCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List local notes",
		Long: `List the notes kept by the local note tools, newest first.

Notes are created and edited with the create_note and update_note tools,
from 'dayai call' or the REPL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, output)
			if err != nil {
				return err
			}
			s, err := root.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.Services().Notes.List()
			if err != nil {
				return err
			}
			return p.Notes(list)
		},
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Search notes by title and content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, output)
			if err != nil {
				return err
			}
			s, err := root.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			matches, err := s.Services().Notes.Search(args[0])
			if err != nil {
				return err
			}
			if p.Format == cli.OutputFormatJSON {
				return p.JSON(matches)
			}
			if len(matches) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No notes match %q.\n", args[0])
				return nil
			}
			tw := cli.NewPlainTableWriter(cmd.OutOrStdout())
			tw.SetHeaders("id", "title", "snippet")
			for _, m := range matches {
				tw.AppendRow(m.ID, m.Title, pkgstrings.Truncate(m.Snippet, 120))
			}
			tw.Render()
			return nil
		},
	})
	return cmd
}
