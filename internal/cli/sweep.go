package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(load func() (*app, error)) *cobra.Command {
	var skipRecheck bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass of the reservation sweeper and the payment re-checker",
		Long: `sweep runs the background jobs of serve once and exits. It is meant for
cron-driven deployments or for draining expired reservations by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			stopEvents := a.startEvents(ctx)
			defer stopEvents()

			out := cmd.OutOrStdout()
			swept, err := a.sweeper().Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sweep: scanned=%d expired=%d skipped=%d conflicts=%d errors=%d\n",
				swept.Scanned, swept.Expired, swept.Skipped, swept.Conflicts, swept.Errors)

			if skipRecheck {
				return nil
			}
			rechecked, err := a.rechecker().Tick(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "recheck: due=%d verified=%d failed=%d pending=%d review=%d conflicts=%d errors=%d\n",
				rechecked.Due, rechecked.Verified, rechecked.Failed, rechecked.Pending,
				rechecked.Review, rechecked.Conflicts, rechecked.Errors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipRecheck, "skip-recheck", false, "only expire stale reservations")
	return cmd
}
