package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
	"github.com/augmentalis/uiscout/internal/classify"
	"github.com/augmentalis/uiscout/internal/config"
	"github.com/augmentalis/uiscout/internal/platform"
	"github.com/augmentalis/uiscout/internal/platform/dumpfile"
	"github.com/augmentalis/uiscout/internal/scrape"
	"github.com/augmentalis/uiscout/internal/store"
)

// components holds the initialized services shared by the learn and watch
// commands.
type components struct {
	Repo        schemas.Repository
	Coordinator *scrape.Coordinator
	Classifier  *classify.Classifier
	Launcher    *platform.LauncherRegistry
	Enumerator  schemas.WindowEnumerator
	Dispatcher  schemas.ActionDispatcher

	dbPool *pgxpool.Pool
}

// Shutdown releases held resources.
func (c *components) Shutdown() {
	if c.dbPool != nil {
		c.dbPool.Close()
	}
}

// initializeComponents performs dependency injection for a capture run.
// dumpDir selects the dump-replay platform adapters; target names the package
// the replay dispatcher reports as foreground. An empty database URL (or
// forceMemory) selects the in-memory repository.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, dumpDir, target string, forceMemory bool) (*components, error) {
	c := &components{}

	repo, pool, err := openRepository(ctx, cfg, logger, forceMemory)
	if err != nil {
		return nil, err
	}
	c.Repo = repo
	c.dbPool = pool

	c.Coordinator = scrape.New(repo, cfg.Scraper, logger)
	c.Classifier = classify.New(cfg.Scraper.RowRepeatThreshold, cfg.Explore.DenyClickMarkers, logger)
	// No live home-intent query source in this build; the registry runs on
	// its static fallback list.
	c.Launcher = platform.NewLauncherRegistry(nil, cfg.Launcher.CacheTTL, cfg.Launcher.StaticFallback, logger)

	if dumpDir == "" {
		c.Shutdown()
		return nil, fmt.Errorf("no window source configured: --dump-dir is required")
	}
	c.Enumerator = dumpfile.NewEnumerator(dumpDir, logger)
	c.Dispatcher = platform.NewPacedDispatcher(
		&dumpfile.StaticDispatcher{Package: target},
		cfg.Explore.ClickRate, cfg.Explore.ActionTimeout, logger)

	return c, nil
}

// openRepository connects the configured repository backend.
func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger, forceMemory bool) (schemas.Repository, *pgxpool.Pool, error) {
	if forceMemory || cfg.Database.URL == "" {
		logger.Info("Using in-memory repository; records will not survive exit")
		return store.NewMemory(logger), nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo, err := store.NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return repo, pool, nil
}
