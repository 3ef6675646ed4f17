package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/augmentalis/uiscout/internal/observability"
	"github.com/augmentalis/uiscout/internal/scrape"
)

// newPurgeCmd creates the `purge` command: deletes an app and everything
// recorded for it. Requires explicit confirmation.
func newPurgeCmd() *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge <package>",
		Short: "Delete an app and all of its captured screens and elements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			packageID := args[0]

			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to purge %s without --yes", packageID)
			}

			memory, _ := cmd.Flags().GetBool("memory")
			repo, pool, err := openRepository(ctx, appCfg, logger, memory)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			coord := scrape.New(repo, appCfg.Scraper, logger)
			if err := coord.PurgeApp(ctx, packageID); err != nil {
				return err
			}
			fmt.Printf("Purged %s.\n", packageID)
			return nil
		},
	}

	purgeCmd.Flags().Bool("yes", false, "Confirm the deletion.")
	purgeCmd.Flags().Bool("memory", false, "Use the in-memory repository regardless of database config.")
	return purgeCmd
}
