// Package scrape contains the scraping coordinator: the single authority for
// per-app records, scrape modes, dedup decisions and completion accounting.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
	"github.com/augmentalis/uiscout/internal/config"
)

// CompletionPolicy estimates how much of an app's UI has been captured. The
// denominator strategy is deliberately policy, not algorithm; see DESIGN.md.
type CompletionPolicy func(discovered, totalKnown int) float64

// DefaultCompletionPolicy is the plain ratio of discovered elements to all
// elements ever seen for the app, clamped to [0, 1].
func DefaultCompletionPolicy(discovered, totalKnown int) float64 {
	if totalKnown <= 0 {
		return 0
	}
	f := float64(discovered) / float64(totalKnown)
	if f > 1 {
		return 1
	}
	return f
}

// Coordinator owns the per-app scrape state. All mode transitions go through
// it; no other component mutates AppRecords.
type Coordinator struct {
	repo      schemas.Repository
	cfg       config.ScraperConfig
	ephemeral *ephemeralCache
	policy    CompletionPolicy
	log       *zap.Logger

	mu         sync.Mutex
	inProgress map[string]string // packageID -> session ID
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCompletionPolicy overrides the default completion denominator strategy.
func WithCompletionPolicy(p CompletionPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// New creates a Coordinator.
func New(repo schemas.Repository, cfg config.ScraperConfig, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		repo:       repo,
		cfg:        cfg,
		ephemeral:  newEphemeralCache(cfg.EphemeralTTL),
		policy:     DefaultCompletionPolicy,
		log:        logger.Named("Coordinator"),
		inProgress: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreateApp fetches or creates the AppRecord for a package and applies
// the mode transition rules: Dynamic -> LearnApp is always an allowed
// upgrade; LearnApp -> Dynamic is refused here and only happens as a
// post-completion downgrade when a session finishes. Storage errors are
// fatal to the caller, which cannot proceed without an app identity.
func (c *Coordinator) GetOrCreateApp(ctx context.Context, packageID string, requested schemas.ScrapeMode) (*schemas.AppRecord, error) {
	now := time.Now()

	app, err := c.repo.GetApp(ctx, packageID)
	if errors.Is(err, schemas.ErrNotFound) {
		app = &schemas.AppRecord{
			PackageID:   packageID,
			DisplayName: packageID,
			Mode:        requested,
			FirstSeen:   now,
			LastSeen:    now,
		}
		if err := c.repo.UpsertApp(ctx, app); err != nil {
			return nil, fmt.Errorf("failed to create app record for %s: %w", packageID, err)
		}
		c.log.Info("New app observed",
			zap.String("package", packageID), zap.String("mode", string(requested)))
		return app, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch app record for %s: %w", packageID, err)
	}

	app.LastSeen = now
	if app.Mode == schemas.ModeDynamic && requested == schemas.ModeLearnApp {
		app.Mode = schemas.ModeLearnApp
		c.log.Info("Mode upgraded to learn-app", zap.String("package", packageID))
	}
	// A requested downgrade keeps the current mode; existing screens and
	// elements are never discarded by a transition.
	if err := c.repo.UpsertApp(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to update app record for %s: %w", packageID, err)
	}
	return app, nil
}

// IsScreenKnown reports whether a screen hash has already been captured for
// the app. Storage errors degrade to "unknown": the worst outcome is a
// redundant capture, which the storage-level upsert absorbs.
func (c *Coordinator) IsScreenKnown(ctx context.Context, packageID string, hash schemas.Hash) bool {
	known, err := c.repo.ScreenExists(ctx, packageID, hash)
	if err != nil {
		c.log.Warn("Screen existence check failed, treating as unknown",
			zap.String("package", packageID), zap.Error(err))
		return false
	}
	return known
}

// IsElementKnown reports whether an element hash exists in durable storage.
// RecordCapture consults it before any sighting-count work on ephemeral
// elements; persistent and hybrid captures skip straight to the upsert,
// which performs its own existence resolution atomically.
func (c *Coordinator) IsElementKnown(ctx context.Context, hash schemas.Hash) bool {
	known, err := c.repo.ElementExists(ctx, hash)
	if err != nil {
		c.log.Warn("Element existence check failed, treating as unknown", zap.Error(err))
		return false
	}
	return known
}

// RecordCapture persists one screen and its elements. The operation is
// idempotent: already-known records only have seen counts bumped by the
// storage upsert. Ephemeral elements stay in the short-lived cache until the
// promotion rule fires. Per-record storage failures are logged and skipped;
// a scrape pass never aborts because one record failed to persist.
func (c *Coordinator) RecordCapture(ctx context.Context, screen *schemas.ScreenRecord, elements []*schemas.ElementRecord) {
	if screen != nil {
		if err := c.repo.UpsertScreen(ctx, screen); err != nil {
			c.log.Warn("Failed to persist screen, skipping",
				zap.String("hash", string(screen.Hash)), zap.Error(err))
		}
	}

	durable := make([]*schemas.ElementRecord, 0, len(elements))
	for _, el := range elements {
		if el.Classification == schemas.ClassEphemeral {
			if c.IsElementKnown(ctx, el.Hash) {
				// Promoted in an earlier pass; the durable record gets its
				// seen-count bump instead of re-entering the sighting cache.
				el.Classification = schemas.ClassPersistent
				durable = append(durable, el)
				continue
			}
			count := c.ephemeral.Note(el.Hash)
			if count <= c.cfg.PromotionThreshold {
				continue
			}
			// Consistent reappearance means the element is not actually
			// transient. This is the only Ephemeral -> Persistent path.
			el.Classification = schemas.ClassPersistent
			c.ephemeral.Forget(el.Hash)
			c.log.Info("Ephemeral element promoted to persistent",
				zap.String("hash", string(el.Hash)), zap.Int("sightings", count))
		}
		durable = append(durable, el)
	}

	if len(durable) == 0 {
		return
	}
	if err := c.repo.UpsertElements(ctx, durable); err != nil {
		c.log.Warn("Bulk element persist failed, retrying per element", zap.Error(err))
		for _, el := range durable {
			if err := c.repo.UpsertElement(ctx, el); err != nil {
				c.log.Warn("Failed to persist element, skipping",
					zap.String("hash", string(el.Hash)), zap.Error(err))
			}
		}
	}
}

// UpdateCompletion folds a scrape pass's counts into the app record and
// recomputes the completion fraction. Totals and completion are monotonic:
// a small passive pass never erases progress from a full active run.
func (c *Coordinator) UpdateCompletion(ctx context.Context, packageID string, screenCount, elementCount int) (float64, error) {
	app, err := c.repo.GetApp(ctx, packageID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch app %s for completion update: %w", packageID, err)
	}

	if screenCount > app.TotalScreens {
		app.TotalScreens = screenCount
	}
	if elementCount > app.TotalElements {
		app.TotalElements = elementCount
	}
	if f := c.policy(elementCount, app.TotalElements); f > app.Completion {
		app.Completion = f
	}
	app.LastSeen = time.Now()

	if err := c.repo.UpsertApp(ctx, app); err != nil {
		return 0, fmt.Errorf("failed to store completion for %s: %w", packageID, err)
	}
	return app.Completion, nil
}

// MarkFullyLearned flags the app as fully learned and performs the
// post-completion downgrade back to dynamic mode.
func (c *Coordinator) MarkFullyLearned(ctx context.Context, packageID string, completion float64) error {
	app, err := c.repo.GetApp(ctx, packageID)
	if err != nil {
		return fmt.Errorf("failed to fetch app %s: %w", packageID, err)
	}
	now := time.Now()
	app.FullyLearned = true
	app.Completion = completion
	app.LearnedAt = &now
	app.Mode = schemas.ModeDynamic
	if err := c.repo.UpsertApp(ctx, app); err != nil {
		return fmt.Errorf("failed to mark app %s fully learned: %w", packageID, err)
	}
	c.log.Info("App fully learned",
		zap.String("package", packageID), zap.Float64("completion", completion))
	return nil
}

// CompletionThreshold exposes the configured fully-learned threshold.
func (c *Coordinator) CompletionThreshold() float64 {
	return c.cfg.CompletionThreshold
}

// BeginSession creates an exploration session, enforcing at most one
// in-progress session per app.
func (c *Coordinator) BeginSession(ctx context.Context, packageID string) (*schemas.ExplorationSession, error) {
	c.mu.Lock()
	if existing, busy := c.inProgress[packageID]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("session %s already in progress for %s", existing, packageID)
	}
	s := &schemas.ExplorationSession{
		ID:        uuid.NewString(),
		PackageID: packageID,
		StartedAt: time.Now(),
		Status:    schemas.SessionInProgress,
	}
	c.inProgress[packageID] = s.ID
	c.mu.Unlock()

	if err := c.repo.CreateSession(ctx, s); err != nil {
		c.mu.Lock()
		delete(c.inProgress, packageID)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to create session for %s: %w", packageID, err)
	}
	return s, nil
}

// FinishSession finalizes a session with the given status and releases the
// app's in-progress slot. A Completed session triggers the post-completion
// mode downgrade, and the fully-learned flag when the threshold is met.
// Captured records are never rolled back; capture correctness does not
// depend on session completion.
func (c *Coordinator) FinishSession(ctx context.Context, s *schemas.ExplorationSession, status schemas.SessionStatus) error {
	now := time.Now()
	s.Status = status
	s.EndedAt = &now

	c.mu.Lock()
	delete(c.inProgress, s.PackageID)
	c.mu.Unlock()

	if err := c.repo.FinishSession(ctx, s); err != nil {
		return fmt.Errorf("failed to finalize session %s: %w", s.ID, err)
	}

	if status != schemas.SessionCompleted {
		return nil
	}
	if s.Completion >= c.cfg.CompletionThreshold {
		return c.MarkFullyLearned(ctx, s.PackageID, s.Completion)
	}
	// Partial but completed run: downgrade the mode so passive capture takes
	// over, leaving fullyLearned unset for incremental catch-up.
	app, err := c.repo.GetApp(ctx, s.PackageID)
	if err != nil {
		return fmt.Errorf("failed to fetch app %s: %w", s.PackageID, err)
	}
	if app.Mode == schemas.ModeLearnApp {
		app.Mode = schemas.ModeDynamic
		if err := c.repo.UpsertApp(ctx, app); err != nil {
			return fmt.Errorf("failed to downgrade mode for %s: %w", s.PackageID, err)
		}
	}
	return nil
}

// PurgeApp removes an app and everything it owns. Explicit user action only.
func (c *Coordinator) PurgeApp(ctx context.Context, packageID string) error {
	c.mu.Lock()
	if sessionID, busy := c.inProgress[packageID]; busy {
		c.mu.Unlock()
		return fmt.Errorf("cannot purge %s while session %s is in progress", packageID, sessionID)
	}
	c.mu.Unlock()
	return c.repo.DeleteApp(ctx, packageID)
}

// ListApps returns all known app records.
func (c *Coordinator) ListApps(ctx context.Context) ([]*schemas.AppRecord, error) {
	return c.repo.ListApps(ctx)
}
