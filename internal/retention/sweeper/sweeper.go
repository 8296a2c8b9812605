// Package sweeper runs retention eviction on an independent periodic
// schedule, decoupled from callers. Each sweep gets a bounded deadline so a
// slow store cannot wedge the loop.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Evictor is the slice of the retention service the sweeper needs.
type Evictor interface {
	Evict(ctx context.Context) (int, error)
}

// Sweeper periodically evicts entries that no longer satisfy their policy.
type Sweeper struct {
	evictor  Evictor
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a sweeper with the given period.
func New(evictor Evictor, interval time.Duration, logger *slog.Logger) *Sweeper {
	timeout := interval / 2
	if timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	return &Sweeper{
		evictor:  evictor,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled. Sweep failures are logged and
// the next tick retries; eviction is idempotent so a partial sweep is safe.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.evictor.Evict(sweepCtx); err != nil {
		s.logger.Warn("retention sweep failed", "error", err)
	}
}
