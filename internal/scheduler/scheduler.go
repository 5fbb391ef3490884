// Package scheduler runs the pipeline on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/weather-snapshot-etl/internal/pipeline"
)

// Runner executes one pipeline run.
type Runner interface {
	RunOnce(ctx context.Context) (pipeline.Run, error)
}

// Scheduler triggers a run immediately on Start and then every interval.
// Runs never overlap: a tick that fires while a run is in progress is
// skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// New creates a Scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the job and starts the scheduler in the background. Runs
// inherit ctx; Stop cancels it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid run interval %s", s.interval)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() { s.runJob(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("schedule pipeline job: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval.String())
	return nil
}

// Stop cancels any in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	run, err := s.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, pipeline.ErrExtractionFailed):
		s.logger.Error("scheduled run aborted", "run_id", run.ID, "error", err)
	case err != nil:
		s.logger.Error("scheduled run failed", "run_id", run.ID, "error", err)
	case run.LoadErr != nil:
		s.logger.Warn("scheduled run completed with load failure", "run_id", run.ID, "snapshot_id", run.Snapshot.String())
	default:
		s.logger.Info("scheduled run completed", "run_id", run.ID, "snapshot_id", run.Snapshot.String())
	}
}
