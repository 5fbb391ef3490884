package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
)

// ErrExtractionFailed marks a run that stopped before the load stage.
var ErrExtractionFailed = errors.New("extraction failed")

// SnapshotExtractor stages a new snapshot.
type SnapshotExtractor interface {
	Extract(ctx context.Context) (Extraction, error)
}

// QualityLoader promotes a staged snapshot.
type QualityLoader interface {
	RunQualityChecksAndLoad(ctx context.Context, snapshot domain.SnapshotID) (LoadResult, error)
}

// SnapshotNotifier announces committed snapshots.
type SnapshotNotifier interface {
	PublishSnapshot(ctx context.Context, event domain.SnapshotEvent) error
}

// Run outcomes, also used as the pipeline_runs_total label.
const (
	OutcomeSuccess       = "success"
	OutcomeLoadFailed    = "load_failed"
	OutcomeExtractFailed = "extract_failed"
)

// Run describes one pipeline execution.
type Run struct {
	ID         string
	Snapshot   domain.SnapshotID
	Extraction Extraction
	Load       LoadResult
	// ExtractErr is set when extraction failed and the load was skipped.
	ExtractErr error
	// LoadErr is set when the load stage failed. The run still counts as
	// having run.
	LoadErr  error
	Started  time.Time
	Finished time.Time
}

// Outcome classifies the run.
func (r Run) Outcome() string {
	switch {
	case r.ExtractErr != nil:
		return OutcomeExtractFailed
	case r.LoadErr != nil:
		return OutcomeLoadFailed
	default:
		return OutcomeSuccess
	}
}

// Pipeline runs the extraction stage followed by the quality-check stage.
type Pipeline struct {
	extractor SnapshotExtractor
	loader    QualityLoader
	notifier  SnapshotNotifier
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu      sync.Mutex
	lastRun *Run
}

// New creates a Pipeline. notifier may be nil.
func New(e SnapshotExtractor, l QualityLoader, notifier SnapshotNotifier, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor: e,
		loader:    l,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has committed its load stage.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a load yet")
	}
	return nil
}

// LastRun returns the most recently finished run, if any.
func (p *Pipeline) LastRun() (Run, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return Run{}, false
	}
	return *p.lastRun, true
}

func (p *Pipeline) record(run Run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRun = &run
}

// RunOnce extracts a snapshot and, if extraction succeeded, runs the quality
// checks for it. The only returned error is ErrExtractionFailed; a failed
// load is reported on Run.LoadErr. Nothing is retried.
func (p *Pipeline) RunOnce(ctx context.Context) (Run, error) {
	run := Run{ID: uuid.NewString(), Started: time.Now().UTC()}
	logger := p.logger.With("run_id", run.ID)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	logger.Info("pipeline run started")

	ext, err := p.extractor.Extract(ctx)
	if err != nil {
		run.Finished = time.Now().UTC()
		run.ExtractErr = err
		p.record(run)
		p.metrics.PipelineRuns.WithLabelValues(OutcomeExtractFailed).Inc()
		logger.Error("pipeline aborted, load skipped", "error", err)
		return run, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	run.Extraction = ext
	run.Snapshot = ext.Snapshot
	logger = logger.With("snapshot_id", run.Snapshot.String())

	res, err := p.loader.RunQualityChecksAndLoad(ctx, run.Snapshot)
	run.Finished = time.Now().UTC()
	if err != nil {
		run.LoadErr = err
		p.record(run)
		p.metrics.PipelineRuns.WithLabelValues(OutcomeLoadFailed).Inc()
		logger.Error("pipeline ran, load failed", "error", err)
		return run, nil
	}
	run.Load = res
	p.record(run)

	p.ready.Store(true)
	p.metrics.PipelineRuns.WithLabelValues(OutcomeSuccess).Inc()
	p.metrics.LastSuccess.SetToCurrentTime()

	p.notify(ctx, run, logger)

	logger.Info("pipeline run complete",
		"staged", ext.Staged,
		"failed_cities", ext.Failed,
		"clean_added", res.CleanAdded,
		"quality_log_added", res.QualityLogAdded,
		"duration", run.Finished.Sub(run.Started).String(),
	)
	return run, nil
}

func (p *Pipeline) notify(ctx context.Context, run Run, logger *slog.Logger) {
	if p.notifier == nil {
		return
	}
	event := domain.SnapshotEvent{
		RunID:           run.ID,
		SnapshotID:      run.Snapshot,
		StagedRows:      run.Extraction.Staged,
		FailedCities:    run.Extraction.Failed,
		CleanRowsAdded:  run.Load.CleanAdded,
		QualityLogAdded: run.Load.QualityLogAdded,
		CompletedAt:     run.Finished,
	}
	if err := p.notifier.PublishSnapshot(ctx, event); err != nil {
		logger.Warn("snapshot notification failed", "error", err)
	}
}
