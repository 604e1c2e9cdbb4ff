package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/spf13/cobra"
)

func newStockCmd(load func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect or set available stock",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <product-id>",
		Short: "Show available and reserved units of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.stock().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStock(cmd.OutOrStdout(), s)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <product-id> <available>",
		Short: "Set the available units of a product; reservations are kept",
		Example: `  minishop stock set mug 25
  MINISHOP_STORE_PATH=/var/lib/minishop.db minishop stock set tea 0`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			available, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("available must be an integer: %w", err)
			}
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.stock().Set(cmd.Context(), args[0], available)
			if err != nil {
				return err
			}
			printStock(cmd.OutOrStdout(), s)
			return nil
		},
	})
	return cmd
}

func printStock(w io.Writer, s *inventory.Stock) {
	fmt.Fprintf(w, "%s\tavailable=%d\treserved=%d\n", s.ProductID, s.Available, s.Reserved)
}
