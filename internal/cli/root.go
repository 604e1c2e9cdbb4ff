package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd assembles the minishop command tree. Every subcommand loads
// configuration from --config plus MINISHOP_* environment overrides.
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "minishop",
		Short: "Checkout service: stock reservation, orders and payment reconciliation",
		Long: `minishop runs the checkout HTTP API together with its background jobs
(reservation sweeper and payment re-checker), and offers operator commands
for the same SQLite store.

Configuration is read from --config (default ./config.yaml when present)
and overridden by environment variables such as MINISHOP_HTTP_ADDR.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	loader := func() (*app, error) { return newApp(configPath) }
	root.AddCommand(
		newServeCmd(loader),
		newMigrateCmd(loader),
		newStockCmd(loader),
		newSweepCmd(loader),
	)
	return root
}

// Execute runs the root command and reports a failure on stderr.
func Execute(version string) error {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
