// Package api provides the HTTP server routes of placesync.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dreampalaces/placesync/internal/api/places"
	"github.com/dreampalaces/placesync/internal/api/system"
	"github.com/dreampalaces/placesync/internal/auth"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	authorizer     *auth.TokenAuthorizer
	refreshTimeout time.Duration
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithAuthorizer sets the authorizer guarding POST /api/refresh
func WithAuthorizer(a *auth.TokenAuthorizer) ServerOption {
	return func(cfg *serverConfig) {
		cfg.authorizer = a
	}
}

// WithRefreshTimeout bounds bootstraps and refreshes started by a request
func WithRefreshTimeout(d time.Duration) ServerOption {
	return func(cfg *serverConfig) {
		cfg.refreshTimeout = d
	}
}

// WithMetricsHandler exposes h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates and configures the HTTP router with the given coordinator and options
func NewServer(coord coordinator.Coordinator, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares:    []func(http.Handler) http.Handler{},
		refreshTimeout: places.DefaultRefreshTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", system.Router(coord))
	r.Mount("/api", places.Router(coord, cfg.authorizer, cfg.refreshTimeout))

	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
