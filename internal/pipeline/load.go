package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-snapshot-etl/internal/adapter/mysql"
	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
	"github.com/couchcryptid/weather-snapshot-etl/internal/sqlscript"
)

// ErrStagePanic wraps a panic recovered at a stage boundary.
var ErrStagePanic = errors.New("stage panicked")

// StatementError reports the quality-check statement that aborted a load.
// Index is 1-based.
type StatementError struct {
	Index int
	Total int
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("quality-check statement %d of %d failed: %v", e.Index, e.Total, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// LoadResult is the outcome of a committed load.
type LoadResult struct {
	Statements      int
	QualityLogAdded int64
	CleanAdded      int64
}

// Loader runs the quality-check script for a snapshot in one transaction.
type Loader struct {
	db      Connector
	script  sqlscript.Source
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader reading its template from script.
func NewLoader(db Connector, script sqlscript.Source, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		db:      db,
		script:  script,
		logger:  logger,
		metrics: metrics,
	}
}

// RunQualityChecksAndLoad executes every statement of the quality-check
// script for snapshot. Either all statements commit or none do. Row-count
// growth is measured across the whole table, so concurrent writers skew it.
func (l *Loader) RunQualityChecksAndLoad(ctx context.Context, snapshot domain.SnapshotID) (res LoadResult, err error) {
	start := time.Now()
	defer func() { l.metrics.LoadDuration.Observe(time.Since(start).Seconds()) }()

	logger := l.logger.With("snapshot_id", snapshot.String())
	logger.Info("quality checks started", "script", l.script.Name())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("load panicked", "panic", r)
			res, err = LoadResult{}, fmt.Errorf("%w: load: %v", ErrStagePanic, r)
		}
		if err != nil {
			l.metrics.LoadFailures.Inc()
		}
	}()

	db, err := l.db.Connect(ctx)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		return LoadResult{}, fmt.Errorf("load: %w", err)
	}
	defer l.db.Close(db)

	logBefore, err := mysql.CountRows(ctx, db, mysql.QualityLogTable)
	if err != nil {
		logger.Error("initial row count failed", "error", err)
		return LoadResult{}, err
	}
	cleanBefore, err := mysql.CountRows(ctx, db, mysql.CleanTable)
	if err != nil {
		logger.Error("initial row count failed", "error", err)
		return LoadResult{}, err
	}

	stmts, err := sqlscript.Prepare(l.script, snapshot)
	if err != nil {
		logger.Error("quality-check script unavailable", "script", l.script.Name(), "error", err)
		return LoadResult{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("begin load transaction failed", "error", err)
		return LoadResult{}, fmt.Errorf("begin load transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			rollback(tx, logger)
		}
	}()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			serr := &StatementError{Index: i + 1, Total: len(stmts), Err: err}
			logger.Error("quality-check statement failed, rolling back",
				"statement", serr.Index,
				"total", serr.Total,
				"error", err,
			)
			return LoadResult{}, serr
		}
		l.metrics.StatementsExecuted.Inc()
		logger.Debug("quality-check statement executed", "statement", i+1, "total", len(stmts))
	}

	if err := tx.Commit(); err != nil {
		logger.Error("commit load transaction failed", "error", err)
		return LoadResult{}, fmt.Errorf("commit load transaction: %w", err)
	}
	committed = true

	logAfter, err := mysql.CountRows(ctx, db, mysql.QualityLogTable)
	if err != nil {
		logger.Error("final row count failed", "error", err)
		return LoadResult{}, err
	}
	cleanAfter, err := mysql.CountRows(ctx, db, mysql.CleanTable)
	if err != nil {
		logger.Error("final row count failed", "error", err)
		return LoadResult{}, err
	}

	res = LoadResult{
		Statements:      len(stmts),
		QualityLogAdded: logAfter - logBefore,
		CleanAdded:      cleanAfter - cleanBefore,
	}
	if res.CleanAdded > 0 {
		l.metrics.CleanRowsAdded.Add(float64(res.CleanAdded))
	}
	if res.QualityLogAdded > 0 {
		l.metrics.QualityLogAdded.Add(float64(res.QualityLogAdded))
	}

	logger.Info("quality checks committed",
		"statements", res.Statements,
		"quality_log_added", res.QualityLogAdded,
		"clean_added", res.CleanAdded,
	)
	return res, nil
}
