package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/mapper"
	"github.com/JakeFAU/linkmapper/internal/metrics"
	"github.com/JakeFAU/linkmapper/internal/registry"
	"github.com/JakeFAU/linkmapper/internal/router"
)

// RunSource exposes the dispatcher's lifecycle. mapper.Mapper satisfies it.
type RunSource interface {
	State() mapper.State
	Stats() mapper.Stats
}

// BindingSource exposes the handler registry. registry.Registry satisfies it.
type BindingSource interface {
	Bindings() []registry.Binding
	Failed() []string
}

// DownloadSource exposes the download capability table. download.Manager satisfies it.
type DownloadSource interface {
	Capabilities() []string
	Executed() map[string]int
}

// Options wires the server to a run.
type Options struct {
	RunID     string
	Run       RunSource
	Bindings  BindingSource
	Downloads DownloadSource
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Metrics records request counters and latencies when set.
	Metrics *metrics.Collectors
	Logger  *zap.Logger
	Timeout time.Duration
}

// Server wires HTTP handlers to a run's live components.
type Server struct {
	router chi.Router
	opts   Options
	logger *zap.Logger
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	RunID     string             `json:"run_id"`
	State     mapper.State       `json:"state"`
	Stats     mapper.Stats       `json:"stats"`
	Handlers  []registry.Binding `json:"handlers"`
	Failed    []string           `json:"failed_families"`
	Downloads map[string]int     `json:"downloads"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	s := &Server{opts: opts, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(opts.Timeout))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/routes", s.routes)
		r.Get("/routes/{crawler}", s.aliases)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the dispatch loop has started.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Run == nil || s.opts.Run.State() == mapper.StateIdle {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": string(s.opts.Run.State())})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Run == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no run attached")
		return
	}
	resp := StatusResponse{
		RunID:     s.opts.RunID,
		State:     s.opts.Run.State(),
		Stats:     s.opts.Run.Stats(),
		Handlers:  []registry.Binding{},
		Failed:    []string{},
		Downloads: map[string]int{},
	}
	if s.opts.Bindings != nil {
		resp.Handlers = append(resp.Handlers, s.opts.Bindings.Bindings()...)
		resp.Failed = append(resp.Failed, s.opts.Bindings.Failed()...)
	}
	if s.opts.Downloads != nil {
		executed := s.opts.Downloads.Executed()
		for _, name := range s.opts.Downloads.Capabilities() {
			resp.Downloads[name] = executed[name]
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type routeView struct {
	Key      string `json:"key"`
	Crawler  string `json:"crawler"`
	Download string `json:"download"`
}

func (s *Server) routes(w http.ResponseWriter, _ *http.Request) {
	table := router.Routes()
	out := make([]routeView, 0, len(table))
	for _, r := range table {
		out = append(out, routeView{Key: string(r.Key), Crawler: r.Crawler, Download: r.Download})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"routes": out, "families": router.Families()})
}

func (s *Server) aliases(w http.ResponseWriter, r *http.Request) {
	crawler := chi.URLParam(r, "crawler")
	keys := router.Aliases(crawler)
	if len(keys) == 0 {
		s.writeError(w, http.StatusNotFound, "unknown crawler")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"crawler": crawler, "keys": keys})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
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
				s.writeError(w, http.StatusInternalServerError, "internal server error")
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

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
