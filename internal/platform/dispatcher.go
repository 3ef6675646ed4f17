package platform

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/augmentalis/uiscout/api/schemas"
)

// PacedDispatcher wraps an ActionDispatcher with a dispatch rate cap and a
// per-action timeout. Platform actions may block or hang; every call is
// time-boxed rather than trusted to return.
type PacedDispatcher struct {
	inner   schemas.ActionDispatcher
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

var _ schemas.ActionDispatcher = (*PacedDispatcher)(nil)

// NewPacedDispatcher builds the wrapper. clicksPerSecond caps click and
// back-press dispatches; timeout bounds each platform call.
func NewPacedDispatcher(inner schemas.ActionDispatcher, clicksPerSecond float64, timeout time.Duration, logger *zap.Logger) *PacedDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PacedDispatcher{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(clicksPerSecond), 1),
		timeout: timeout,
		log:     logger.Named("Dispatcher"),
	}
}

func (d *PacedDispatcher) Click(ctx context.Context, node schemas.NodeHandle) bool {
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Debug("Cancelled while waiting for click slot", zap.Error(err))
		return false
	}
	actionCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.inner.Click(actionCtx, node)
}

func (d *PacedDispatcher) PressBack(ctx context.Context) bool {
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Debug("Cancelled while waiting for back-press slot", zap.Error(err))
		return false
	}
	actionCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.inner.PressBack(actionCtx)
}

func (d *PacedDispatcher) ActivePackage(ctx context.Context) (string, bool) {
	actionCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.inner.ActivePackage(actionCtx)
}
