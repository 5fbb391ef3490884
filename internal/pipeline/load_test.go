package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
	"github.com/couchcryptid/weather-snapshot-etl/internal/pipeline"
	"github.com/couchcryptid/weather-snapshot-etl/internal/sqlscript"
)

const loadSnapshot domain.SnapshotID = 17466442574821

const twoStatementScript = `
-- flag rows with no temperature
INSERT INTO data_quality_log (snapshot_id, check_name)
SELECT snapshot_id, 'missing_temperature' FROM weather_staging
WHERE snapshot_id = :current_snapshot_id AND temperature_celsius IS NULL;

INSERT INTO weather_clean (city_name)
SELECT city_name FROM weather_staging
WHERE snapshot_id = :current_snapshot_id AND temperature_celsius IS NOT NULL;
`

func exactSQL(stmt string) string {
	return "^" + regexp.QuoteMeta(stmt) + "$"
}

func newLoader(conn pipeline.Connector, script sqlscript.Source, metrics *observability.Metrics) *pipeline.Loader {
	return pipeline.NewLoader(conn, script, discardLogger(), metrics)
}

func TestLoader_CommitsAndReportsDeltas(t *testing.T) {
	stmts, err := sqlscript.Prepare(stringSource(twoStatementScript), loadSnapshot)
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 10)
	expectCount(mock, "weather_clean", 40)
	mock.ExpectBegin()
	mock.ExpectExec(exactSQL(stmts[0])).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(exactSQL(stmts[1])).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()
	expectCount(mock, "data_quality_log", 11)
	expectCount(mock, "weather_clean", 44)

	conn := newMockConnector(db)
	metrics := observability.NewMetricsForTesting()

	res, err := newLoader(conn, stringSource(twoStatementScript), metrics).
		RunQualityChecksAndLoad(context.Background(), loadSnapshot)
	require.NoError(t, err)

	assert.Equal(t, pipeline.LoadResult{Statements: 2, QualityLogAdded: 1, CleanAdded: 4}, res)
	assert.Contains(t, stmts[0], "snapshot_id = 17466442574821")
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StatementsExecuted))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.CleanRowsAdded))
	assert.Zero(t, testutil.ToFloat64(metrics.LoadFailures))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_RerunReportsZeroDeltas(t *testing.T) {
	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 11)
	expectCount(mock, "weather_clean", 44)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO data_quality_log").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO weather_clean").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	expectCount(mock, "data_quality_log", 11)
	expectCount(mock, "weather_clean", 44)

	res, err := newLoader(newMockConnector(db), stringSource(twoStatementScript), observability.NewMetricsForTesting()).
		RunQualityChecksAndLoad(context.Background(), loadSnapshot)
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.QualityLogAdded)
	assert.Equal(t, int64(0), res.CleanAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_StatementFailureRollsBackEverything(t *testing.T) {
	script := "INSERT INTO a SELECT :current_snapshot_id; INSERT INTO b SELECT 1; INSERT INTO c SELECT 2;"

	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 0)
	expectCount(mock, "weather_clean", 0)
	mock.ExpectBegin()
	mock.ExpectExec(exactSQL("INSERT INTO a SELECT 17466442574821")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(exactSQL("INSERT INTO b SELECT 1")).WillReturnError(errors.New("Unknown column 'x'"))
	mock.ExpectRollback()

	conn := newMockConnector(db)
	metrics := observability.NewMetricsForTesting()

	res, err := newLoader(conn, stringSource(script), metrics).RunQualityChecksAndLoad(context.Background(), loadSnapshot)

	var stmtErr *pipeline.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 2, stmtErr.Index)
	assert.Equal(t, 3, stmtErr.Total)
	assert.Contains(t, err.Error(), "statement 2 of 3")
	assert.Equal(t, pipeline.LoadResult{}, res)
	assert.Equal(t, 1, conn.closes)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LoadFailures))
	// The third statement was never sent: sqlmock rejects unexpected calls.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_ConnectionFailure(t *testing.T) {
	conn := newMockConnector()
	conn.err = errors.New("access denied for user 'etl'")

	_, err := newLoader(conn, stringSource(twoStatementScript), observability.NewMetricsForTesting()).
		RunQualityChecksAndLoad(context.Background(), loadSnapshot)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestLoader_MissingScriptFile(t *testing.T) {
	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 0)
	expectCount(mock, "weather_clean", 0)

	conn := newMockConnector(db)
	src := sqlscript.NewSource(filepath.Join(t.TempDir(), "absent.sql"))

	_, err := newLoader(conn, src, observability.NewMetricsForTesting()).
		RunQualityChecksAndLoad(context.Background(), loadSnapshot)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read quality checks")
	assert.Equal(t, 1, conn.closes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_EmptyScriptCommitsNothing(t *testing.T) {
	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 3)
	expectCount(mock, "weather_clean", 7)
	mock.ExpectBegin()
	mock.ExpectCommit()
	expectCount(mock, "data_quality_log", 3)
	expectCount(mock, "weather_clean", 7)

	res, err := newLoader(newMockConnector(db), stringSource("-- nothing to do\n"), observability.NewMetricsForTesting()).
		RunQualityChecksAndLoad(context.Background(), loadSnapshot)
	require.NoError(t, err)

	assert.Equal(t, pipeline.LoadResult{}, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_RejectsInvalidSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 0)
	expectCount(mock, "weather_clean", 0)

	_, err := newLoader(newMockConnector(db), stringSource(twoStatementScript), observability.NewMetricsForTesting()).
		RunQualityChecksAndLoad(context.Background(), 0)

	require.ErrorIs(t, err, sqlscript.ErrUnsafeSnapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_EmbeddedScript(t *testing.T) {
	stmts, err := sqlscript.Prepare(sqlscript.NewSource(""), loadSnapshot)
	require.NoError(t, err)

	db, mock := newMockDB(t)
	expectCount(mock, "data_quality_log", 0)
	expectCount(mock, "weather_clean", 0)
	mock.ExpectBegin()
	for _, stmt := range stmts {
		mock.ExpectExec(exactSQL(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
	expectCount(mock, "data_quality_log", 1)
	expectCount(mock, "weather_clean", 4)

	res, err := newLoader(newMockConnector(db), sqlscript.NewSource(""), observability.NewMetricsForTesting()).
		RunQualityChecksAndLoad(context.Background(), loadSnapshot)
	require.NoError(t, err)

	assert.Equal(t, len(stmts), res.Statements)
	assert.Equal(t, int64(1), res.QualityLogAdded)
	assert.Equal(t, int64(4), res.CleanAdded)
	require.NoError(t, mock.ExpectationsWereMet())
}
