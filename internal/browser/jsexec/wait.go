// internal/browser/jsexec/wait.go
package jsexec

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
	"github.com/Anonyfox/magpie-html-sub001/internal/config"
)

// WaitSettle blocks until the page is considered settled under the configured
// strategy. It never outlives the run budget or the context.
//
//   - timeout: a fixed grace period (idle_time) for timers and microtasks,
//     clamped to what remains of the budget.
//   - networkidle: the pending-work counter must stay at zero for a full
//     continuous idle_time window, checked every poll_interval. An in-flight
//     dynamic fetch or XHR resets the window.
func WaitSettle(ctx context.Context, cfg config.RunConfig, b *budget.Budget, pending *PendingTracker, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("settle")

	switch cfg.WaitStrategy {
	case config.WaitNetworkIdle:
		waitNetworkIdle(ctx, cfg, b, pending, log)
	default:
		waitFixed(ctx, b.Clamp(cfg.IdleTime))
	}
}

func waitFixed(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func waitNetworkIdle(ctx context.Context, cfg config.RunConfig, b *budget.Budget, pending *PendingTracker, log *zap.Logger) {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	window := cfg.IdleTime
	if window <= 0 {
		window = 500 * time.Millisecond
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var idleSince time.Time

	for {
		if b.Exceeded() {
			log.Debug("Budget exhausted while waiting for network idle",
				zap.Int64("pending", pending.Count()))
			return
		}

		if pending.Idle() {
			if idleSince.IsZero() {
				idleSince = time.Now()
			} else if time.Since(idleSince) >= window {
				log.Debug("Network idle window satisfied",
					zap.Duration("window", window))
				return
			}
		} else {
			idleSince = time.Time{}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
