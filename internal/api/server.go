// Package api exposes the query manager over HTTP.
//
// Callers identify themselves with the X-User-Email and X-User-Id headers,
// set by the authenticating proxy in front of the service. Requests without
// them are anonymous.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/vigil/internal/query"
)

// Identity headers.
const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserID    = "X-User-Id"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server holds the HTTP handler dependencies.
type Server struct {
	mgr    *query.Manager
	models []string
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithModels restricts submissions to the given model ids.
func WithModels(ids []string) Option {
	return func(s *Server) { s.models = slices.Clone(ids) }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server over mgr.
func New(mgr *query.Manager, opts ...Option) *Server {
	s := &Server{mgr: mgr, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/query/submit", s.SubmitQuery)
	r.Get("/results", s.RegisteredResults)
	r.Route("/models/{model}", func(r chi.Router) {
		r.Post("/sweep", s.Sweep)
		r.Post("/report", s.QueryReport)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) knownModel(id string) bool {
	return len(s.models) == 0 || slices.Contains(s.models, id)
}
