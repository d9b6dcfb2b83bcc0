package core

// scheduler.go runs the full pipeline in the background.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// failed or rejected run is logged and retried on the next tick; it never
// stops the scheduler.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SchedulerConfig holds configuration for the pipeline scheduler.
type SchedulerConfig struct {
	Interval   time.Duration // How often to run; zero disables the scheduler
	RunOnStart bool          // Run once immediately before the first tick
}

// StartScheduler runs the pipeline every Interval until ctx is cancelled.
// It blocks, so callers start it in a goroutine.
func (s *Service) StartScheduler(ctx context.Context, cfg SchedulerConfig) {
	if cfg.Interval <= 0 {
		slog.Info("pipeline scheduler disabled")
		return
	}
	slog.Info("pipeline scheduler started", "interval", cfg.Interval.String())

	ctx = ContextWithTrigger(ctx, TriggerScheduler)
	if cfg.RunOnStart {
		s.runScheduled(ctx)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

// runScheduled performs one pipeline run. When another run holds the slot
// past the limiter's wait time this tick is skipped.
func (s *Service) runScheduled(ctx context.Context) {
	start := time.Now()
	result, err := s.RunPipeline(ctx)
	if errors.Is(err, ErrTooManyRuns) {
		slog.Info("scheduled pipeline run skipped, another run is active")
		return
	}
	if err != nil {
		slog.Error("scheduled pipeline run failed", "error", err)
	}
	if result == nil {
		return
	}

	var succeeded, failed int
	for _, st := range result.Stages {
		succeeded += st.Succeeded
		failed += st.Failed
	}
	slog.Info("scheduled pipeline run completed",
		"run_id", result.RunID,
		"succeeded", succeeded,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
