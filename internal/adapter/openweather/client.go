// Package openweather fetches current-weather observations by city name from
// the OpenWeatherMap API. It returns raw response bodies; parsing belongs to
// the domain package.
package openweather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
	"github.com/couchcryptid/weather-snapshot-etl/internal/observability"
)

// maxBodyBytes caps how much of a response is read. Current-weather payloads
// are well under 2 KiB.
const maxBodyBytes = 1 << 20

// ErrCircuitOpen is returned without contacting the API while the breaker is
// open after repeated failures.
var ErrCircuitOpen = errors.New("weather API circuit breaker open")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openweathermap API error: status %d: %s", e.Code, e.Body)
}

// Client implements pipeline.WeatherFetcher.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a client. Each request is bounded by timeout. A
// breakerThreshold of zero disables the circuit breaker; otherwise it opens
// after that many consecutive server-side or transport failures.
func NewClient(apiKey, baseURL string, timeout time.Duration, breakerThreshold int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker(breakerThreshold, logger),
		metrics:    metrics,
		logger:     logger,
	}
}

func newBreaker(threshold int, logger *slog.Logger) *gobreaker.CircuitBreaker {
	if threshold <= 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         "openweathermap",
		MaxRequests:  1,
		Timeout:      time.Minute,
		IsSuccessful: breakerSuccess,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// breakerSuccess reports whether err leaves the breaker's failure count
// alone. A 4xx is about the request (unknown city, bad key), not API health.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500
}

// CurrentWeather performs one GET for city and returns the response body.
// It never retries.
func (c *Client) CurrentWeather(ctx context.Context, city domain.City) ([]byte, error) {
	if c.breaker == nil {
		return c.fetch(ctx, city)
	}

	body, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, city)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.BreakerOpenSkips.Inc()
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, city domain.City) ([]byte, error) {
	params := url.Values{
		"q":     {city.Query()},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.APIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("weather request for %s: %w", city, redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", city, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// redact strips the request URL, which carries the API key, from transport
// errors before they reach the logs.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
