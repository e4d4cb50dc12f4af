// Package api exposes the HTTP status surface of a harvest: a run snapshot,
// Prometheus metrics, and the pause control.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/controller"
	"github.com/cna-research/geoharvest/internal/status/sinks"
)

// Server wires HTTP handlers to the run tracker and pause flag.
type Server struct {
	router  chi.Router
	tracker *sinks.Tracker
	pause   *controller.Pause
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The registry
// backs /metrics; the pause flag may be nil, disabling the pause endpoints.
func NewServer(
	tracker *sinks.Tracker,
	pause *controller.Pause,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: tracker,
		pause:   pause,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.getStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Post("/pause", s.setPause)
	r.Post("/resume", s.clearPause)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "status tracking disabled")
		return
	}
	snap := s.tracker.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"run":    snap,
		"paused": s.pause.IsSet(),
	})
}

func (s *Server) setPause(w http.ResponseWriter, _ *http.Request) {
	if s.pause == nil {
		writeError(w, http.StatusConflict, "pause control disabled")
		return
	}
	s.pause.Set()
	s.logger.Info("pause requested via api")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) clearPause(w http.ResponseWriter, _ *http.Request) {
	if s.pause == nil {
		writeError(w, http.StatusConflict, "pause control disabled")
		return
	}
	s.pause.Clear()
	s.logger.Info("resume requested via api")
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := contextWithRequestID(r.Context(), reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
