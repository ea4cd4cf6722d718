package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/queue"
)

// SweepFunc removes stale records and reports how many it removed
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a fixed interval. It backs the dead-letter
// purge and the fingerprint cache prune in the worker.
type Sweeper struct {
	name     string
	sweep    SweepFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper. Each run gets at most timeout; zero means one interval.
func NewSweeper(name string, sweep SweepFunc, interval, timeout time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = interval
	}
	return &Sweeper{name: name, sweep: sweep, interval: interval, timeout: timeout, logger: logger}
}

// DeadLetterPurge sweeps dead-lettered jobs older than retention
func DeadLetterPurge(q queue.DLQPurger, retention time.Duration) SweepFunc {
	return func(ctx context.Context) (int, error) {
		return q.PurgeOlderThan(ctx, retention)
	}
}

// Start sweeps once immediately and then on every tick until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) error {
	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Sweeper) run(ctx context.Context) {
	if err := s.runOnce(ctx); err != nil {
		s.logger.Error("sweep_failed", zap.String("sweeper", s.name), zap.Error(err))
	}
}

func (s *Sweeper) runOnce(ctx context.Context) error {
	if s.sweep == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.sweep(ctx)
	if err != nil {
		return fmt.Errorf("%s sweep: %w", s.name, err)
	}
	if removed > 0 {
		s.logger.Info("sweep_removed", zap.String("sweeper", s.name), zap.Int("removed", removed))
	}
	return nil
}
