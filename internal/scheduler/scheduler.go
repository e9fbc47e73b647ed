// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"code-gems/internal/model"
)

// BatchRunner is the part of the updater the scheduler drives.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, batchSize int) (model.BatchResult, error)
}

// Scheduler triggers a refresh batch on a fixed interval. It does not retry
// rejected batches; a rate-limited or busy run simply waits for the next tick.
type Scheduler struct {
	runner    BatchRunner
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// New creates a Scheduler.
func New(runner BatchRunner, interval time.Duration, batchSize int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start begins the periodic trigger loop and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting update scheduler", "interval", s.interval.String(), "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx) // Initial run

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.runner.ProcessBatch(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("Scheduled batch failed", "error", err)
		return
	}
	if result.Reason != "" {
		s.logger.Info("Scheduled batch skipped", "reason", result.Reason,
			"rate_remaining", result.RateLimitRemaining, "next_reset", result.NextReset)
		return
	}
	s.logger.Info("Scheduled batch finished",
		"run_id", result.RunID, "processed", result.Processed, "failed", result.Failed)
}
