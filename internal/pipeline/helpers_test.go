package pipeline_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
)

// observedAt is the dt used by every fixture body.
var observedAt = time.Date(2025, 5, 7, 18, 57, 37, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// freezeSnapshotClock pins snapshot timestamps to observedAt for the test.
func freezeSnapshotClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(observedAt))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// --- database ---

// mockConnector hands out the given handles in order, one per Connect.
type mockConnector struct {
	mu       sync.Mutex
	dbs      []*sql.DB
	err      error
	connects int
	closes   int
}

func newMockConnector(dbs ...*sql.DB) *mockConnector {
	return &mockConnector{dbs: dbs}
}

func (m *mockConnector) Connect(_ context.Context) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.dbs) == 0 {
		return nil, fmt.Errorf("no database handle left for connect #%d", m.connects)
	}
	db := m.dbs[0]
	m.dbs = m.dbs[1:]
	return db, nil
}

func (m *mockConnector) Close(db *sql.DB) {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	if db != nil {
		_ = db.Close()
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

// snapshotArg matches any well-formed snapshot ID bound as a query argument.
type snapshotArg struct{}

func (snapshotArg) Match(v driver.Value) bool {
	n, ok := v.(int64)
	return ok && domain.SnapshotID(n).Valid()
}

var insertStaging = regexp.QuoteMeta("INSERT INTO weather_staging")

func expectStaged(mock sqlmock.Sqlmock, name, country string) {
	mock.ExpectExec(insertStaging).
		WithArgs(snapshotArg{}, name, country, observedAt,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectCount(mock sqlmock.Sqlmock, table string, n int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM " + table)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(n))
}

// --- weather API ---

// owmBody renders a current-weather response like the ones OpenWeatherMap
// returns for a city query.
func owmBody(name, country string, temp float64) string {
	return fmt.Sprintf(`{
  "coord": {"lon": -0.1257, "lat": 51.5085},
  "weather": [{"id": 804, "main": "Clouds", "description": "overcast clouds", "icon": "04d"}],
  "main": {"temp": %g, "feels_like": %g, "temp_min": 10.1, "temp_max": 13.2, "pressure": 1012, "humidity": 70},
  "wind": {"speed": 3.6, "deg": 250},
  "dt": %d,
  "sys": {"country": %q},
  "name": %q,
  "cod": 200
}`, temp, temp-1, observedAt.Unix(), country, name)
}

type fakeResponse struct {
	body string
	err  error
}

// fakeFetcher serves canned responses keyed by city name.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
	panicOn   string
}

func (f *fakeFetcher) CurrentWeather(_ context.Context, city domain.City) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, city.Name)
	f.mu.Unlock()

	if city.Name == f.panicOn {
		panic("fetcher exploded")
	}
	r, ok := f.responses[city.Name]
	if !ok {
		return nil, fmt.Errorf("no response for %s", city.Name)
	}
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.body), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- quality-check script ---

type stringSource string

func (s stringSource) Load() (string, error) { return string(s), nil }
func (stringSource) Name() string           { return "test-script" }
