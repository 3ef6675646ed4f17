package platform

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
)

// LauncherQueryFunc resolves the set of installed launcher packages via a
// live system query (home-intent resolution). It may fail, e.g. when the
// required permission is missing.
type LauncherQueryFunc func(ctx context.Context) ([]string, error)

// LauncherRegistry answers "is this package a home screen?". It prefers the
// live query, caches the answer for a TTL, and falls back to a static list
// of well-known launcher identifiers when the query is unavailable.
type LauncherRegistry struct {
	query    LauncherQueryFunc
	ttl      time.Duration
	fallback map[string]struct{}
	log      *zap.Logger

	mu        sync.Mutex
	cached    map[string]struct{}
	fetchedAt time.Time

	// now is swappable for tests.
	now func() time.Time
}

var _ schemas.LauncherRegistry = (*LauncherRegistry)(nil)

// NewLauncherRegistry builds a registry. query may be nil, in which case
// only the static fallback list is consulted.
func NewLauncherRegistry(query LauncherQueryFunc, ttl time.Duration, staticFallback []string, logger *zap.Logger) *LauncherRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := make(map[string]struct{}, len(staticFallback))
	for _, pkg := range staticFallback {
		fallback[pkg] = struct{}{}
	}
	return &LauncherRegistry{
		query:    query,
		ttl:      ttl,
		fallback: fallback,
		log:      logger.Named("LauncherRegistry"),
		now:      time.Now,
	}
}

// IsLauncher reports whether the package is a home-screen surface.
func (r *LauncherRegistry) IsLauncher(ctx context.Context, packageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && r.now().Sub(r.fetchedAt) < r.ttl {
		_, ok := r.cached[packageID]
		return ok
	}

	if r.query != nil {
		pkgs, err := r.query(ctx)
		if err == nil {
			cached := make(map[string]struct{}, len(pkgs))
			for _, p := range pkgs {
				cached[p] = struct{}{}
			}
			r.cached = cached
			r.fetchedAt = r.now()
			_, ok := cached[packageID]
			return ok
		}
		r.log.Debug("Live launcher query failed, using static fallback", zap.Error(err))
	}

	_, ok := r.fallback[packageID]
	return ok
}
