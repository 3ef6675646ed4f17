package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/augmentalis/uiscout/internal/explore"
	"github.com/augmentalis/uiscout/internal/observability"
	"github.com/augmentalis/uiscout/internal/platform/eventlog"
)

// newWatchCmd creates the `watch` command: the passive capture loop driven by
// the accessibility event log. Runs until interrupted.
func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Passively capture screens as apps come to the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			dumpDir, _ := cmd.Flags().GetString("dump-dir")
			memory, _ := cmd.Flags().GetBool("memory")

			eventLog := appCfg.Watcher.EventLog
			if cmd.Flags().Changed("event-log") {
				eventLog, _ = cmd.Flags().GetString("event-log")
			}
			if eventLog == "" {
				return fmt.Errorf("no event log configured: set --event-log or watcher.event_log")
			}
			concurrency := appCfg.Watcher.Concurrency
			if cmd.Flags().Changed("concurrency") {
				concurrency, _ = cmd.Flags().GetInt("concurrency")
			}

			// The watch loop serves whichever package surfaces; the replay
			// dispatcher target is irrelevant because passive capture never
			// dispatches actions.
			comps, err := initializeComponents(ctx, appCfg, logger, dumpDir, "", memory)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			engine := explore.NewEngine(appCfg.Explore, comps.Coordinator,
				comps.Enumerator, comps.Launcher, nil, comps.Classifier, logger)
			runner := explore.NewPassiveRunner(engine)

			watcher := eventlog.NewWatcher(eventLog, logger)
			events, err := watcher.Watch(ctx)
			if err != nil {
				return fmt.Errorf("failed to open event log %s: %w", eventLog, err)
			}

			logger.Info("Watching for foreground changes",
				zap.String("eventLog", eventLog), zap.Int("concurrency", concurrency))

			g, gctx := errgroup.WithContext(ctx)
			sem := semaphore.NewWeighted(int64(concurrency))
			g.Go(func() error {
				for pkg := range events {
					if err := sem.Acquire(gctx, 1); err != nil {
						return err
					}
					pkg := pkg
					g.Go(func() error {
						defer sem.Release(1)
						if err := runner.Observe(gctx, pkg); err != nil {
							// A single bad surface must not stop the loop.
							logger.Warn("Passive capture failed",
								zap.String("package", pkg), zap.Error(err))
						}
						return nil
					})
				}
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Watch loop stopped")
			return nil
		},
	}

	watchCmd.Flags().String("event-log", "", "Accessibility event log to follow. (Overrides config/env)")
	watchCmd.Flags().String("dump-dir", "", "Directory of accessibility XML dumps to replay.")
	watchCmd.Flags().Bool("memory", false, "Use the in-memory repository regardless of database config.")
	watchCmd.Flags().Int("concurrency", 0, "Concurrent passive captures. (Overrides config/env)")
	return watchCmd
}
