package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
	"github.com/couchcryptid/firms-fire-etl/internal/pipeline"
)

const (
	serviceName = "NASA FIRMS Fire Monitor"

	defaultLimit = 200
	maxLimit     = 5000
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// PointReader returns the most recently observed fire points.
type PointReader interface {
	Latest(ctx context.Context, limit int) ([]domain.FirePoint, error)
}

// RunReporter exposes the summary of the last completed ingestion run.
type RunReporter interface {
	LastResult() (pipeline.Result, bool)
}

// Options wires the server's collaborators. Runs and Clock are optional.
type Options struct {
	Addr    string
	Version string
	Ready   ReadinessChecker
	Points  PointReader
	Runs    RunReporter
	Clock   clockwork.Clock
}

// Server exposes the JSON query surface alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	opts       Options
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/fires, /api/status, /healthz,
// /readyz, and /metrics routes.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		opts:   opts,
		logger: logger,
	}

	mux.HandleFunc("GET /api/fires", s.handleFires)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(opts.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type firesResponse struct {
	Count int                `json:"count"`
	Data  []domain.FirePoint `json:"data"`
}

func (s *Server) handleFires(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	points, err := s.opts.Points.Latest(r.Context(), limit)
	if err != nil {
		s.logger.Error("query latest fire points failed", "error", err, "limit", limit)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		sharedobs.WriteJSON(w, status, map[string]string{"error": "fire points unavailable"})
		return
	}
	if points == nil {
		points = []domain.FirePoint{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, firesResponse{Count: len(points), Data: points})
}

// parseLimit applies the default for a missing value and clamps to maxLimit.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

type statusResponse struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version"`
	LastRun   *pipeline.Result `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:    "running",
		Service:   serviceName,
		Timestamp: s.opts.Clock.Now().UTC().Format(time.RFC3339),
		Version:   s.opts.Version,
	}
	if s.opts.Runs != nil {
		if res, ok := s.opts.Runs.LastResult(); ok {
			resp.LastRun = &res
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}
