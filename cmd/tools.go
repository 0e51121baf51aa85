package cmd

import (
	"github.com/spf13/cobra"

	"dayai/internal/cli"
	"dayai/internal/mcpclient"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the authentication state of every configured server",
		Long: `Reconnect the servers you are logged in to, refreshing expired tokens,
and show per-server state:

  connected      a live MCP session
  disconnected   tokens are stored but the session is closed
  expired        the access token expired and cannot be refreshed
  auth_required  no tokens; run 'dayai login'
  error          the last connection attempt failed`,
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

			s.reconnect(cmd.Context())
			resp, err := s.Status()
			if err != nil {
				return err
			}
			return p.Status(resp)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func newToolsCmd(root *rootOptions) *cobra.Command {
	var (
		output    string
		noHeaders bool
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List local and remote tools",
		Long: `List every tool dayai can call: the local note tools and the tools of
each connected MCP server, named mcp__<server>__<tool>.

With --output json the list has the shape LLM tool-use APIs expect
(name, description, input_schema).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, output)
			if err != nil {
				return err
			}
			p.NoHeaders = noHeaders

			s, err := root.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			s.reconnect(cmd.Context())
			return p.Tools(s.Catalogue())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit the header row")
	return cmd
}

func newCallCmd(root *rootOptions) *cobra.Command {
	var (
		rawArgs string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool",
		Long: `Call a local or remote tool. Arguments are passed as a JSON object.

Examples:
  dayai call mcp__day-ai__search --args '{"query": "Acme"}'
  dayai call create_note --args '{"title": "Q3", "content": "Renewal in May"}'
  dayai call list_notes -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd, output)
			if err != nil {
				return err
			}
			toolArgs, err := parseArgsFlag(rawArgs)
			if err != nil {
				return err
			}

			s, err := root.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if mcpclient.IsMCPToolName(args[0]) {
				s.reconnect(cmd.Context())
			}
			res := s.Call(cmd.Context(), args[0], toolArgs)
			if res.Success || p.Format == cli.OutputFormatJSON {
				if err := p.Result(res); err != nil {
					return err
				}
			}
			if !res.Success {
				return callError(res)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&rawArgs, "args", "a", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}
