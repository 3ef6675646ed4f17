package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/augmentalis/uiscout/internal/explore"
	"github.com/augmentalis/uiscout/internal/observability"
)

// newLearnCmd creates the `learn` command: one active exploration session
// against a single package.
func newLearnCmd() *cobra.Command {
	learnCmd := &cobra.Command{
		Use:   "learn <package>",
		Short: "Exhaustively explore an app's UI by clicking through it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			packageID := args[0]

			dumpDir, _ := cmd.Flags().GetString("dump-dir")
			memory, _ := cmd.Flags().GetBool("memory")

			// Explicit flags override config-file and environment values.
			if cmd.Flags().Changed("depth") {
				appCfg.Explore.MaxDepth, _ = cmd.Flags().GetInt("depth")
			}
			if cmd.Flags().Changed("click-rate") {
				appCfg.Explore.ClickRate, _ = cmd.Flags().GetFloat64("click-rate")
			}

			comps, err := initializeComponents(ctx, appCfg, logger, dumpDir, packageID, memory)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			engine := explore.NewEngine(appCfg.Explore, comps.Coordinator,
				comps.Enumerator, comps.Launcher, comps.Dispatcher, comps.Classifier, logger)

			session, err := engine.Explore(ctx, packageID)
			if err != nil {
				return err
			}

			fmt.Printf("\nExploration complete. Session %s\n", session.ID)
			fmt.Printf("  Screens discovered:  %d\n", session.ScreensDiscovered)
			fmt.Printf("  Elements discovered: %d\n", session.ElementsDiscovered)
			fmt.Printf("  Elements clicked:    %d\n", session.ElementsClicked)
			fmt.Printf("  Completion:          %.1f%%\n", session.Completion*100)
			return nil
		},
	}

	learnCmd.Flags().String("dump-dir", "", "Directory of accessibility XML dumps to replay.")
	learnCmd.Flags().Bool("memory", false, "Use the in-memory repository regardless of database config.")
	learnCmd.Flags().Int("depth", 0, "Maximum node tree depth. (Overrides config/env)")
	learnCmd.Flags().Float64("click-rate", 0, "Maximum click dispatches per second. (Overrides config/env)")
	return learnCmd
}
