package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
)

const testKey = "test-key"

var london = domain.City{Name: "London", Country: "UK"}

func testClient(baseURL string, breakerThreshold int) *Client {
	return NewClient(testKey, baseURL, 5*time.Second, breakerThreshold,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestClient_CurrentWeather_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "London,UK", r.URL.Query().Get("q"))
		assert.Equal(t, testKey, r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"London","main":{"temp":15.5}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	body, err := c.CurrentWeather(context.Background(), london)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"London","main":{"temp":15.5}}`, string(body))
}

func TestClient_CurrentWeather_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	_, err := c.CurrentWeather(context.Background(), london)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestClient_CurrentWeather_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.CurrentWeather(context.Background(), london)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey, "transport errors must not leak the API key")
}

func TestClient_CurrentWeather_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL, 0).CurrentWeather(ctx, london)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_CurrentWeather_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2)
	for range 2 {
		_, err := c.CurrentWeather(context.Background(), london)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
	}

	_, err := c.CurrentWeather(context.Background(), london)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the API")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.BreakerOpenSkips))
}

func TestClient_CurrentWeather_BreakerDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 0)
	for range 5 {
		_, err := c.CurrentWeather(context.Background(), london)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestClient_CurrentWeather_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"Tokyo"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 3)
	var succeeded int
	for _, city := range domain.DefaultCities() {
		_, err := c.CurrentWeather(context.Background(), city)
		if err == nil {
			succeeded++
			continue
		}
		assert.NotErrorIs(t, err, ErrCircuitOpen, city.String())
	}

	assert.Equal(t, int32(5), calls.Load(), "every city must reach the API")
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.BreakerOpenSkips))
}
