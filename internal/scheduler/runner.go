package scheduler

import (
	"context"
	"time"

	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// Pipeline is the unit of work the runner drives once per cycle
type Pipeline interface {
	RunCycle(ctx context.Context) *services.CycleResult
}

// Runner drives the pipeline either once or on a fixed interval.
// Cycle failures (including panics) are logged and never terminate the
// loop; only context cancellation or run-once mode stops it.
type Runner struct {
	pipeline Pipeline
	interval time.Duration
	runOnce  bool
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewRunner creates a new runner
func NewRunner(pipeline Pipeline, interval time.Duration, runOnce bool, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Runner {
	return &Runner{
		pipeline: pipeline,
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Run blocks until the context is cancelled, or returns nil after one
// cycle in run-once mode.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.cycle(ctx)

		if r.runOnce {
			r.logger.Info(ctx, "[RUNNER_DONE] Run-once mode; stopping after one cycle", logging.Fields{})
			return nil
		}

		r.logger.Info(ctx, "[RUNNER_SLEEP] Sleeping before next cycle", logging.Fields{
			"interval": r.interval.String(),
		})

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// cycle runs one pipeline pass, containing any panic so the loop
// survives an entirely failed cycle
func (r *Runner) cycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecordCycleError("panic")
			r.logger.Error(ctx, "[CYCLE_PANIC] Cycle panicked; continuing", logging.Fields{
				"panic": rec,
			}, nil)
		}
	}()

	result := r.pipeline.RunCycle(ctx)
	if result != nil && len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			r.logger.Warn(ctx, "[CYCLE_PARTIAL] Cycle error", logging.Fields{
				"cycle_id": result.CycleID,
				"error":    msg,
			})
		}
	}
}
