// Package explore implements the traversal engines: the active, click-driven
// exploration state machine and the passive observe-as-you-go capture path.
package explore

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
	"github.com/augmentalis/uiscout/internal/classify"
	"github.com/augmentalis/uiscout/internal/config"
	"github.com/augmentalis/uiscout/internal/platform"
	"github.com/augmentalis/uiscout/internal/scrape"
)

// State is the exploration state machine:
// Idle -> Traversing -> (Recovering <-> Traversing) -> Completed | Aborted.
type State int32

const (
	StateIdle State = iota
	StateTraversing
	StateRecovering
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTraversing:
		return "traversing"
	case StateRecovering:
		return "recovering"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Engine drives exploration for one target at a time. The coordinator's
// one-in-progress-session-per-app invariant serializes concurrent calls for
// the same package; different packages may run on separate engines.
type Engine struct {
	cfg        config.ExploreConfig
	coord      *scrape.Coordinator
	windows    schemas.WindowEnumerator
	launcher   schemas.LauncherRegistry
	actions    schemas.ActionDispatcher
	classifier *classify.Classifier
	log        *zap.Logger
}

// NewEngine creates an exploration engine. actions may be nil for a
// passive-only engine.
func NewEngine(
	cfg config.ExploreConfig,
	coord *scrape.Coordinator,
	windows schemas.WindowEnumerator,
	launcher schemas.LauncherRegistry,
	actions schemas.ActionDispatcher,
	classifier *classify.Classifier,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		coord:      coord,
		windows:    windows,
		launcher:   launcher,
		actions:    actions,
		classifier: classifier,
		log:        logger.Named("ExploreEngine"),
	}
}

// Explore runs one active (learn-app) session against the target package.
// The returned session carries discovered/clicked counts and the completion
// fraction even for failed or partial runs; captured records are never
// rolled back.
func (e *Engine) Explore(ctx context.Context, packageID string) (*schemas.ExplorationSession, error) {
	if e.actions == nil {
		return nil, fmt.Errorf("engine has no action dispatcher; active exploration unavailable")
	}
	if e.launcher.IsLauncher(ctx, packageID) {
		return nil, fmt.Errorf("refusing to explore launcher package %s", packageID)
	}

	if _, err := e.coord.GetOrCreateApp(ctx, packageID, schemas.ModeLearnApp); err != nil {
		return nil, err
	}
	session, err := e.coord.BeginSession(ctx, packageID)
	if err != nil {
		return nil, err
	}

	r := e.newRun(session, packageID, true)
	r.setState(StateTraversing)

	runErr := r.exploreWindows(ctx)

	// Finalization must happen even when the caller cancelled mid-flight;
	// a session record is never left dangling.
	finalCtx := context.WithoutCancel(ctx)

	session.ScreensDiscovered = len(r.screensSeen)
	session.ElementsDiscovered = len(r.elementsSeen)
	session.ElementsClicked = r.clickCount

	completion, cerr := e.coord.UpdateCompletion(finalCtx, packageID,
		session.ScreensDiscovered, session.ElementsDiscovered)
	if cerr != nil {
		e.log.Warn("Completion update failed", zap.String("package", packageID), zap.Error(cerr))
	}
	session.Completion = completion

	status := schemas.SessionCompleted
	if runErr != nil {
		r.setState(StateAborted)
		status = schemas.SessionFailed
	} else {
		r.setState(StateCompleted)
	}

	if err := e.coord.FinishSession(finalCtx, session, status); err != nil {
		e.log.Error("Failed to finalize session",
			zap.String("session", session.ID), zap.Error(err))
	}

	e.log.Info("Exploration session finished",
		zap.String("package", packageID),
		zap.String("status", string(status)),
		zap.Int("screens", session.ScreensDiscovered),
		zap.Int("elements", session.ElementsDiscovered),
		zap.Int("clicked", session.ElementsClicked),
		zap.Float64("completion", session.Completion))

	if runErr != nil {
		return session, fmt.Errorf("exploration of %s aborted: %w", packageID, runErr)
	}
	return session, nil
}

// clickKey identifies one (screen, element) interaction edge within a
// session. A pair is clicked at most once per session.
type clickKey struct {
	screen  schemas.Hash
	element schemas.Hash
}

// run is the per-session traversal state. It is confined to a single
// goroutine; only state is read from outside (tests).
type run struct {
	e       *Engine
	session *schemas.ExplorationSession
	target  string

	// clicking selects active mode; shortCircuit enables the passive
	// screen-level dedup skip.
	clicking     bool
	shortCircuit bool

	state atomic.Int32

	clicked      map[clickKey]struct{}
	deadEdges    map[clickKey]struct{}
	homeEdges    map[clickKey]struct{}
	screensSeen  map[schemas.Hash]struct{}
	elementsSeen map[schemas.Hash]struct{}
	clickCount   int

	log *zap.Logger
}

func (e *Engine) newRun(session *schemas.ExplorationSession, target string, clicking bool) *run {
	log := e.log.With(zap.String("package", target))
	if session != nil {
		log = log.With(zap.String("session", session.ID))
	}
	return &run{
		e:            e,
		session:      session,
		target:       target,
		clicking:     clicking,
		shortCircuit: !clicking,
		clicked:      make(map[clickKey]struct{}),
		deadEdges:    make(map[clickKey]struct{}),
		homeEdges:    make(map[clickKey]struct{}),
		screensSeen:  make(map[schemas.Hash]struct{}),
		elementsSeen: make(map[schemas.Hash]struct{}),
		log:          log,
	}
}

func (r *run) State() State {
	return State(r.state.Load())
}

func (r *run) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		r.log.Debug("State transition",
			zap.String("from", old.String()), zap.String("to", s.String()))
	}
}

// captureSuppressed reports whether scraping is suspended. Suppression is a
// consequence of being in the Recovering state, not a free-floating flag.
func (r *run) captureSuppressed() bool {
	return r.State() == StateRecovering
}

// exploreWindows enumerates the target's windows and walks each one.
// Enumeration failure here is fatal: without windows there is nothing to
// resume from.
func (r *run) exploreWindows(ctx context.Context) error {
	windows, err := r.e.windows.ListWindows(ctx, r.target)
	if err != nil {
		platform.RecycleWindows(windows)
		return fmt.Errorf("window enumeration failed: %w", err)
	}

	for i, w := range windows {
		if w.PackageID != "" && r.e.launcher.IsLauncher(ctx, w.PackageID) {
			w.Root.Recycle()
			continue
		}
		if err := ctx.Err(); err != nil {
			platform.RecycleWindows(windows[i:])
			return err
		}
		if err := r.walkWindow(ctx, w); err != nil {
			platform.RecycleWindows(windows[i+1:])
			return err
		}
	}
	return nil
}
