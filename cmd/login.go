package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dayai/internal/app"
	"dayai/internal/cli"
)

func newLoginCmd(root *rootOptions) *cobra.Command {
	var (
		serverID   string
		reregister bool
		noBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize dayai and connect to an MCP server",
		Long: `Authorize dayai against an MCP server and connect to it.

On first use the client registers itself with the server (RFC 7591), then
opens the authorization page in your browser and waits for the redirect on
the local callback address. Tokens are stored in the configuration directory
and refreshed automatically.

Examples:
  dayai login                       # the default Day AI server
  dayai login --server crm          # a server from config.yaml
  dayai login --no-browser          # print the URL instead of opening it
  dayai login --reregister          # discard the stored client registration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.openSession(cmd, func(cfg *app.Config) {
				cfg.NoBrowser = noBrowser
			})
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Login(cmd.Context(), app.LoginOptions{
				ServerID:   serverID,
				Reregister: reregister,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Registered {
				fmt.Fprintln(out, cli.Success("Registered dayai as an OAuth client of "+res.ServerID))
			}
			fmt.Fprintln(out, cli.Success(fmt.Sprintf("Logged in to %s (%d tools available)", res.ServerID, len(res.Tools))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&serverID, "server", "s", "", "Server ID from config.yaml (default: first configured server)")
	cmd.Flags().BoolVar(&reregister, "reregister", false, "Register a new OAuth client even if one is stored")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	return cmd
}

func newLogoutCmd(root *rootOptions) *cobra.Command {
	var serverID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke tokens and disconnect from an MCP server",
		Long: `Revoke the stored tokens (best effort), close the MCP session and
forget the tokens. The client registration is kept so the next login does
not register again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			id := serverID
			if def, ok := s.Settings().DefaultServer(); ok && id == "" {
				id = def.ID
			}
			if err := s.Logout(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.Success("Logged out of "+id))
			return nil
		},
	}

	cmd.Flags().StringVarP(&serverID, "server", "s", "", "Server ID from config.yaml (default: first configured server)")
	return cmd
}
