package memory

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler periodically sweeps expired memories.
type Scheduler struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a sweep scheduler with the default interval.
func NewScheduler(store *Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		interval: SweepInterval,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, sweeping on each tick.
// Callers must track the goroutine with a WaitGroup.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.store.Sweep(ctx); err != nil {
				s.logger.Warn("memory sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("swept expired memories", "count", n)
			}
		}
	}
}
