package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/dreampalaces/placesync/internal/api"
	"github.com/dreampalaces/placesync/internal/auth"
	"github.com/dreampalaces/placesync/internal/cache"
	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/sources"
	"github.com/dreampalaces/placesync/internal/status"
	pkgsync "github.com/dreampalaces/placesync/internal/sync"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
	"github.com/dreampalaces/placesync/internal/telemetry"
	"github.com/dreampalaces/placesync/internal/transform"
)

const (
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 60 * time.Second

	// writeTimeoutMargin leaves room to encode the response after a refresh
	// that used its whole budget
	writeTimeoutMargin = 30 * time.Second

	// TracerName names the tracer handed to the sync pipeline
	TracerName = "github.com/dreampalaces/placesync/sync"
)

// PlaceSyncAppOptions is a function that configures the app builder
type PlaceSyncAppOptions func(*placeSyncAppConfig) error

// placeSyncAppConfig collects what NewPlaceSyncApp needs. Component overrides
// exist for tests; production wiring fills in the rest from the configuration.
type placeSyncAppConfig struct {
	config *config.Config

	// Optional component overrides
	fetcher           sources.Fetcher
	transformer       transform.Transformer
	store             cache.Store
	statusPersistence status.StatusPersistence
	syncManager       pkgsync.Manager
	clock             clock.Clock

	// HTTP server options
	address      string
	middlewares  []func(http.Handler) http.Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...PlaceSyncAppOptions) (*placeSyncAppConfig, error) {
	cfg := &placeSyncAppConfig{
		readTimeout: defaultReadTimeout,
		idleTimeout: defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.Server.Address
	}
	if cfg.writeTimeout == 0 {
		cfg.writeTimeout = cfg.config.Server.RefreshTimeout.Std() + writeTimeoutMargin
	}

	return cfg, nil
}

// NewPlaceSyncApp wires the sync pipeline, the coordinator and the HTTP server
func NewPlaceSyncApp(
	ctx context.Context,
	opts ...PlaceSyncAppOptions,
) (*PlaceSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components.SyncCoordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &PlaceSyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address, overriding server.address
func WithAddress(addr string) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithFetcher injects the upstream fetcher (for testing)
func WithFetcher(f sources.Fetcher) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithTransformer injects the record transformer (for testing)
func WithTransformer(t transform.Transformer) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.transformer = t
		return nil
	}
}

// WithStore injects the cache store (for testing)
func WithStore(s cache.Store) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithStatusPersistence injects the sync status persistence (for testing)
func WithStatusPersistence(p status.StatusPersistence) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.statusPersistence = p
		return nil
	}
}

// WithSyncManager injects the sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithClock sets the clock used for throttling
func WithClock(c clock.Clock) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.clock = c
		return nil
	}
}

// WithMeterProvider enables HTTP and sync metrics
func WithMeterProvider(mp metric.MeterProvider) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider enables HTTP and sync tracing
func WithTracerProvider(tp trace.TracerProvider) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes a Prometheus scrape handler at /metrics
func WithMetricsHandler(h http.Handler) PlaceSyncAppOptions {
	return func(cfg *placeSyncAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildSyncComponents builds the fetch, transform and commit pipeline and its coordinator
func buildSyncComponents(
	_ context.Context,
	b *placeSyncAppConfig,
) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	var syncMetrics *telemetry.SyncMetrics
	if b.meterProvider != nil {
		var err error
		syncMetrics, err = telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		slog.Info("Sync metrics enabled")
	}

	var tracer trace.Tracer
	if b.tracerProvider != nil {
		tracer = b.tracerProvider.Tracer(TracerName)
	}

	if b.store == nil {
		store, err := cache.NewFileStore(b.config.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache store: %w", err)
		}
		b.store = store
	}

	if b.statusPersistence == nil {
		b.statusPersistence = status.NewFileStatusPersistence(b.config.StatusPath())
	}

	if b.syncManager == nil {
		if b.fetcher == nil {
			fetcherOpts := []sources.Option{
				sources.WithRateLimitHook(func(ctx context.Context, page int, _ time.Duration) {
					syncMetrics.RecordRateLimited(ctx, page)
				}),
				sources.WithTracer(tracer),
			}
			if b.clock != nil {
				fetcherOpts = append(fetcherOpts, sources.WithClock(b.clock))
			}
			fetcher, err := sources.NewAirtableFetcher(&b.config.Upstream, fetcherOpts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create fetcher: %w", err)
			}
			b.fetcher = fetcher
		}

		if b.transformer == nil {
			transformer, err := transform.NewGeoTransformer(transform.ConfigFrom(b.config))
			if err != nil {
				return nil, fmt.Errorf("failed to create transformer: %w", err)
			}
			b.transformer = transformer
		}

		b.syncManager = pkgsync.NewDefaultSyncManager(b.fetcher, b.transformer, b.store)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithStatusPersistence(b.statusPersistence),
		coordinator.WithSyncMetrics(syncMetrics),
		coordinator.WithTracer(tracer),
	}
	if b.clock != nil {
		coordOpts = append(coordOpts, coordinator.WithClock(b.clock))
	}

	syncCoordinator := coordinator.New(b.syncManager, b.store, b.config, coordOpts...)
	slog.Info("Sync components initialized successfully",
		"cache_path", b.store.Path(),
		"min_refresh_interval", b.config.Refresh.MinInterval.String())

	return &AppComponents{
		SyncCoordinator:   syncCoordinator,
		Store:             b.store,
		StatusPersistence: b.statusPersistence,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *placeSyncAppConfig,
	coord coordinator.Coordinator,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// No middleware.Timeout: refreshes are bounded by server.refreshTimeout instead
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.tracerProvider),
		}, b.middlewares...)
		slog.Info("HTTP tracing middleware enabled")
	}

	// Outermost so requests rejected further in are still counted
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		slog.Info("HTTP metrics middleware enabled")
	}

	authorizer := auth.NewTokenAuthorizer(b.config.Refresh.Token)
	if !authorizer.Enabled() {
		slog.Warn("No refresh token configured; POST /api/refresh is open to anyone")
	}

	router := api.NewServer(coord,
		api.WithMiddlewares(b.middlewares...),
		api.WithAuthorizer(authorizer),
		api.WithRefreshTimeout(b.config.Server.RefreshTimeout.Std()),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server initialized", "address", b.address, "write_timeout", b.writeTimeout.String())
	return server, nil
}
