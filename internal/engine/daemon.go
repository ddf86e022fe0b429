package engine

import (
	"context"
	"time"
)

// Run drives the engine continuously: one cycle immediately, then one per
// check interval until the context is canceled. Cycle errors are logged and
// the loop continues; the next tick gets a fresh attempt.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.GetCheckInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	e.log.Info("automation daemon started", "check_interval", interval.String())

	for {
		if _, err := e.RunCycle(ctx); err != nil {
			e.log.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			e.log.Info("automation daemon stopped")
			return ctx.Err()
		case <-e.clk.After(interval):
		}
	}
}
