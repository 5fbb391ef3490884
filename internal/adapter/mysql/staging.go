package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
)

// Table names the pipeline reads or writes directly.
type Table string

const (
	StagingTable    Table = "weather_staging"
	CleanTable      Table = "weather_clean"
	QualityLogTable Table = "data_quality_log"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertStagingSQL = `INSERT INTO weather_staging (
	snapshot_id, city_name, country_code, observation_timestamp,
	temperature_celsius, feels_like_celsius, humidity_percent,
	pressure_hpa, wind_speed_mps, weather_main, weather_description,
	api_response_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertStagingRecord writes one staging row. Nil fields are stored as NULL.
func InsertStagingRecord(ctx context.Context, ex Execer, rec domain.StagingRecord) error {
	_, err := ex.ExecContext(ctx, insertStagingSQL,
		int64(rec.SnapshotID),
		rec.CityName,
		rec.CountryCode,
		rec.ObservedAt,
		rec.TemperatureC,
		rec.FeelsLikeC,
		rec.HumidityPct,
		rec.PressureHPa,
		rec.WindSpeedMPS,
		rec.WeatherMain,
		rec.WeatherDescription,
		rec.RawJSON,
	)
	if err != nil {
		return fmt.Errorf("insert staging row: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, q Querier, table Table) (int64, error) {
	var n int64
	// Table is a closed set of constants, never caller input.
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
