// Package http serves the operational endpoints of the long-running ETL:
// liveness, readiness, Prometheus metrics and a summary of the latest run.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-snapshot-etl/internal/pipeline"
)

// Monitor is the view of the pipeline the server reports on.
// *pipeline.Pipeline implements it.
type Monitor interface {
	sharedobs.ReadinessChecker
	LastRun() (pipeline.Run, bool)
}

// Server exposes /healthz, /readyz, /metrics and /runs/last while the
// scheduler runs the pipeline.
type Server struct {
	httpServer *http.Server
	monitor    Monitor
	logger     *slog.Logger
}

// NewServer creates the server. Readiness turns green once a run has
// committed its load stage.
func NewServer(addr string, monitor Monitor, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		monitor: monitor,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(monitor))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs/last", s.handleLastRun)

	return s
}

// runStatus is the JSON body of /runs/last.
type runStatus struct {
	RunID           string    `json:"run_id"`
	Outcome         string    `json:"outcome"`
	SnapshotID      string    `json:"snapshot_id,omitempty"`
	StagedRows      int       `json:"staged_rows"`
	FailedCities    int       `json:"failed_cities"`
	CleanRowsAdded  int64     `json:"clean_rows_added"`
	QualityLogAdded int64     `json:"quality_log_rows_added"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

func newRunStatus(run pipeline.Run) runStatus {
	st := runStatus{
		RunID:           run.ID,
		Outcome:         run.Outcome(),
		StagedRows:      run.Extraction.Staged,
		FailedCities:    run.Extraction.Failed,
		CleanRowsAdded:  run.Load.CleanAdded,
		QualityLogAdded: run.Load.QualityLogAdded,
		StartedAt:       run.Started,
		FinishedAt:      run.Finished,
	}
	if run.Snapshot.Valid() {
		st.SnapshotID = run.Snapshot.String()
	}
	switch {
	case run.ExtractErr != nil:
		st.Error = run.ExtractErr.Error()
	case run.LoadErr != nil:
		st.Error = run.LoadErr.Error()
	}
	return st
}

func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.monitor.LastRun()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"status": "no run yet"})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newRunStatus(run))
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP lets tests drive the routes without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
