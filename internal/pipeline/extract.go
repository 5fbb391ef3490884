package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-snapshot-etl/internal/adapter/mysql"
	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
)

// ErrMissingAPIKey is returned by the extractor when no API key is configured.
var ErrMissingAPIKey = errors.New("OPENWEATHERMAP_API_KEY is not set")

// Connector opens and releases database handles. Close must accept nil.
type Connector interface {
	Connect(ctx context.Context) (*sql.DB, error)
	Close(db *sql.DB)
}

// WeatherFetcher returns the raw current-weather response for a city.
type WeatherFetcher interface {
	CurrentWeather(ctx context.Context, city domain.City) ([]byte, error)
}

// ExtractorConfig holds the extraction settings.
type ExtractorConfig struct {
	APIKey      string
	Cities      []domain.City
	PacingDelay time.Duration
	// Clock drives the pacing delay. Nil means real time.
	Clock clockwork.Clock
}

// Extraction summarizes one extraction stage.
type Extraction struct {
	Snapshot domain.SnapshotID
	Staged   int
	Failed   int
}

// Extractor fetches every configured city and stages the observations under
// a fresh snapshot ID in a single transaction.
type Extractor struct {
	cfg     ExtractorConfig
	fetcher WeatherFetcher
	db      Connector
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg ExtractorConfig, fetcher WeatherFetcher, db Connector, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Extractor{
		cfg:     cfg,
		fetcher: fetcher,
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

// FetchWeatherData runs the extraction stage and returns the snapshot ID that
// tags the staged rows. A snapshot is returned even when every city failed;
// an error means nothing was committed.
func (e *Extractor) FetchWeatherData(ctx context.Context) (domain.SnapshotID, error) {
	ext, err := e.Extract(ctx)
	if err != nil {
		return 0, err
	}
	return ext.Snapshot, nil
}

// Extract is FetchWeatherData with per-city counts.
func (e *Extractor) Extract(ctx context.Context) (ext Extraction, err error) {
	if e.cfg.APIKey == "" {
		e.logger.Error("extraction aborted", "error", ErrMissingAPIKey)
		return Extraction{}, ErrMissingAPIKey
	}

	start := time.Now()
	defer func() { e.metrics.ExtractDuration.Observe(time.Since(start).Seconds()) }()

	snapshot := domain.NewSnapshotID()
	logger := e.logger.With("snapshot_id", snapshot.String())
	logger.Info("extraction started", "cities", len(e.cfg.Cities))

	db, err := e.db.Connect(ctx)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		return Extraction{}, fmt.Errorf("extract: %w", err)
	}
	defer e.db.Close(db)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("begin staging transaction failed", "error", err)
		return Extraction{}, fmt.Errorf("begin staging transaction: %w", err)
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("extraction panicked", "panic", r)
			ext, err = Extraction{}, fmt.Errorf("%w: extract: %v", ErrStagePanic, r)
		}
		if !committed {
			rollback(tx, logger)
		}
	}()

	ext = Extraction{Snapshot: snapshot}
	for i, city := range e.cfg.Cities {
		if i > 0 {
			if err := e.pace(ctx); err != nil {
				logger.Warn("extraction interrupted", "error", err)
				return Extraction{}, fmt.Errorf("extract: %w", err)
			}
		}

		staged, err := e.stageCity(ctx, tx, snapshot, city, logger)
		if err != nil {
			logger.Error("staging failed, rolling back", "city", city.String(), "error", err)
			return Extraction{}, err
		}
		if staged {
			ext.Staged++
		} else {
			ext.Failed++
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("commit staging transaction failed", "error", err)
		return Extraction{}, fmt.Errorf("commit staging transaction: %w", err)
	}
	committed = true

	e.metrics.StagedRows.Add(float64(ext.Staged))
	logger.Info("extraction complete", "staged", ext.Staged, "failed", ext.Failed)
	return ext, nil
}

// stageCity fetches and stages one city. API and parse failures are logged
// and reported as (false, nil); only database errors are returned.
func (e *Extractor) stageCity(ctx context.Context, tx *sql.Tx, snapshot domain.SnapshotID, city domain.City, logger *slog.Logger) (bool, error) {
	body, err := e.fetcher.CurrentWeather(ctx, city)
	if err != nil {
		logger.Warn("weather fetch failed", "city", city.String(), "error", err)
		e.metrics.CityFetches.WithLabelValues("http_error").Inc()
		return false, nil
	}

	rec, err := domain.ParseObservation(snapshot, body)
	if err != nil {
		logger.Warn("weather response rejected", "city", city.String(), "error", err)
		e.metrics.CityFetches.WithLabelValues("parse_error").Inc()
		return false, nil
	}

	if err := mysql.InsertStagingRecord(ctx, tx, rec); err != nil {
		return false, err
	}

	e.metrics.CityFetches.WithLabelValues("staged").Inc()
	logger.Debug("city staged", "city", city.String())
	return true, nil
}

// pace waits the configured delay between cities.
func (e *Extractor) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.cfg.PacingDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.cfg.Clock.After(e.cfg.PacingDelay):
		return nil
	}
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn("rollback failed", "error", err)
	}
}
