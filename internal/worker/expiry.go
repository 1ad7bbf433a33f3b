package worker

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper defines the registry operations needed by the expiry worker.
type SessionSweeper interface {
	SweepIdle(maxIdle time.Duration) int
	Len() int
}

// SessionExpiryWorker periodically tears down admin sessions that have
// gone idle, so abandoned screens do not pin state forever.
type SessionExpiryWorker struct {
	registry SessionSweeper
	interval time.Duration
	maxIdle  time.Duration
}

// NewSessionExpiryWorker creates a worker with the given registry, sweep
// interval, and idle cutoff.
func NewSessionExpiryWorker(registry SessionSweeper, interval, maxIdle time.Duration) *SessionExpiryWorker {
	return &SessionExpiryWorker{
		registry: registry,
		interval: interval,
		maxIdle:  maxIdle,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (w *SessionExpiryWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "session-expiry",
		"interval", w.interval.String(),
		"max_idle", w.maxIdle.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "session-expiry",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep executes a single expiry cycle.
func (w *SessionExpiryWorker) sweep() {
	removed := w.registry.SweepIdle(w.maxIdle)
	if removed > 0 {
		slog.Info("sessions expired",
			"component", "worker",
			"action", "session_sweep",
			"removed", removed,
			"remaining", w.registry.Len(),
		)
	}
}
