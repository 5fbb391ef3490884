package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	PipelineRuns    *prometheus.CounterVec // labels: outcome={success,load_failed,extract_failed}
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	// Extraction metrics.
	CityFetches      *prometheus.CounterVec // labels: outcome={staged,http_error,parse_error}
	StagedRows       prometheus.Counter
	APIDuration      prometheus.Histogram
	ExtractDuration  prometheus.Histogram
	BreakerOpenSkips prometheus.Counter

	// Quality-check metrics.
	StatementsExecuted prometheus.Counter
	LoadFailures       prometheus.Counter
	CleanRowsAdded     prometheus.Counter
	QualityLogAdded    prometheus.Counter
	LoadDuration       prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRuns,
		m.PipelineRunning,
		m.LastSuccess,
		m.CityFetches,
		m.StagedRows,
		m.APIDuration,
		m.ExtractDuration,
		m.BreakerOpenSkips,
		m.StatementsExecuted,
		m.LoadFailures,
		m.CleanRowsAdded,
		m.QualityLogAdded,
		m.LoadDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run whose load stage committed.",
		}),
		CityFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_fetches_total",
			Help:      "Per-city extraction attempts by outcome.",
		}, []string{"outcome"}),
		StagedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staged_rows_total",
			Help:      "Rows committed to the staging table.",
		}),
		APIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ExtractDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Duration of the extraction stage, including pacing delays.",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120},
		}),
		BreakerOpenSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_api_breaker_rejections_total",
			Help:      "City fetches rejected by the open circuit breaker.",
		}),
		StatementsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_statements_executed_total",
			Help:      "Quality-check statements executed successfully.",
		}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Quality-check batches rolled back.",
		}),
		CleanRowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clean_rows_added_total",
			Help:      "Growth of weather_clean across committed loads.",
		}),
		QualityLogAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_log_rows_added_total",
			Help:      "Growth of data_quality_log across committed loads.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of the quality-check and load stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
