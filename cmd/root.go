package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dayai/internal/cli"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	debug       bool
	quiet       bool
	showMetrics bool
}

// appVersion is set by SetVersion. Commands read it instead of rootCmd so
// that building rootCmd does not depend on rootCmd.
var appVersion string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dayai",
		Short: "Connect to Day AI's MCP server and call its tools",
		Long: `dayai authenticates against Day AI (or any OAuth-protected MCP server)
with an authorization code + PKCE flow, keeps the tokens fresh and exposes the
server's tools next to a small set of local note tools.

Start with:
  dayai login      # register, authorize in the browser and connect
  dayai tools      # list every callable tool
  dayai repl       # explore interactively`,
		// Errors are already reported by cobra; usage only helps for flag errors.
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config-path", "", "Configuration directory (default: $DAYAI_CONFIG_DIR or ~/.config/dayai)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")
	cmd.PersistentFlags().BoolVar(&opts.showMetrics, "show-metrics", false, "Print OAuth and tool call metrics on exit")

	cmd.SetVersionTemplate(`{{printf "dayai version %s\n" .Version}}`)

	cmd.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newToolsCmd(opts),
		newCallCmd(opts),
		newReplCmd(opts),
		newNotesCmd(opts),
		newVersionCmd(),
		newSelfUpdateCmd(),
	)
	return cmd
}

// SetVersion sets the version reported by "dayai version" and sent as the
// MCP client version.
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

// GetVersion returns the version set with SetVersion.
func GetVersion() string {
	return appVersion
}

// Execute runs the root command and exits with a status derived from the
// error: 2 when a login is needed, 3 when an authorization flow failed and
// 1 otherwise.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
