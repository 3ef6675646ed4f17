package explore

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/augmentalis/uiscout/api/schemas"
)

// PassiveRunner captures whatever surface the user happens to be looking at.
// It never clicks, never presses back and never changes an app's mode: a
// passive pass is invisible to the user.
type PassiveRunner struct {
	engine *Engine
	group  singleflight.Group
	log    *zap.Logger
}

// NewPassiveRunner wraps an engine for passive capture. The engine's action
// dispatcher is never used by this path.
func NewPassiveRunner(engine *Engine) *PassiveRunner {
	return &PassiveRunner{
		engine: engine,
		log:    engine.log.Named("Passive"),
	}
}

// Observe captures the current windows of the foreground package. Launcher
// surfaces are ignored. Concurrent observations of the same package collapse
// into one pass; event bursts for a single app do not multiply work.
func (p *PassiveRunner) Observe(ctx context.Context, packageID string) error {
	if p.engine.launcher.IsLauncher(ctx, packageID) {
		p.log.Debug("Ignoring launcher surface", zap.String("package", packageID))
		return nil
	}

	_, err, _ := p.group.Do(packageID, func() (interface{}, error) {
		return nil, p.observe(ctx, packageID)
	})
	return err
}

func (p *PassiveRunner) observe(ctx context.Context, packageID string) error {
	app, err := p.engine.coord.GetOrCreateApp(ctx, packageID, schemas.ModeDynamic)
	if err != nil {
		return err
	}

	r := p.engine.newRun(nil, packageID, false)
	r.setState(StateTraversing)

	if err := r.exploreWindows(ctx); err != nil {
		r.setState(StateAborted)
		return err
	}
	r.setState(StateCompleted)

	if len(r.elementsSeen) == 0 {
		// Every window short-circuited; nothing new to account for.
		return nil
	}

	completion, err := p.engine.coord.UpdateCompletion(ctx, packageID,
		len(r.screensSeen), len(r.elementsSeen))
	if err != nil {
		p.log.Warn("Completion update failed",
			zap.String("package", packageID), zap.Error(err))
		return nil
	}

	p.log.Info("Passive capture complete",
		zap.String("package", packageID),
		zap.String("mode", string(app.Mode)),
		zap.Int("screens", len(r.screensSeen)),
		zap.Int("elements", len(r.elementsSeen)),
		zap.Float64("completion", completion))
	return nil
}
