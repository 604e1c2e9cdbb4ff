package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the SQLite schema and print its version",
		Long: `Opening the store applies every pending schema migration. migrate does
only that, so it can run before the first serve or after an upgrade.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			version, err := a.store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "store %s at schema version %d\n", a.cfg.Store.Path, version)
			return nil
		},
	}
}
