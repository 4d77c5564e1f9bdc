package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the process-wide tracer and meter providers.
// Disabled telemetry still yields usable no-op providers.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler
}

// Option configures New
type Option func(*telemetryConfig)

type telemetryConfig struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(tc *telemetryConfig) {
		tc.config = cfg
	}
}

// shutdowner is implemented by the SDK providers but not the no-op ones
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// New builds the providers described by the configuration.
// Call Shutdown before exit to flush pending exports.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	cfg := &telemetryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.config == nil || !cfg.config.Enabled {
		slog.Debug("Telemetry disabled")
		return &Telemetry{
			tracerProvider: mustNoOpTracer(ctx),
			meterProvider:  mustNoOpMeter(ctx),
		}, nil
	}

	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	slog.Info("Initializing telemetry",
		"service_name", cfg.config.GetServiceName(),
		"service_version", cfg.config.GetServiceVersion(),
	)

	providerOpts := providerOptionsFrom(cfg.config)

	tracerProvider, err := NewTracerProvider(ctx, cfg.config.Tracing, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	// A private registry keeps the scrape output limited to placesync instruments
	var metricsHandler http.Handler
	if cfg.config.PrometheusEnabled() {
		registry := prometheus.NewRegistry()
		providerOpts = append(providerOpts, WithPrometheusRegisterer(registry))
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	meterProvider, err := NewMeterProvider(ctx, cfg.config.Metrics, providerOpts...)
	if err != nil {
		if s, ok := tracerProvider.(shutdowner); ok {
			_ = s.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	return &Telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		metricsHandler: metricsHandler,
	}, nil
}

// the nil configs never reach an exporter, so these cannot fail
func mustNoOpTracer(ctx context.Context) trace.TracerProvider {
	tp, _ := NewTracerProvider(ctx, nil)
	return tp
}

func mustNoOpMeter(ctx context.Context) metric.MeterProvider {
	mp, _ := NewMeterProvider(ctx, nil)
	return mp
}

// TracerProvider returns the tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the Prometheus scrape handler, or nil when Prometheus is not enabled
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Tracer is shorthand for TracerProvider().Tracer
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter is shorthand for MeterProvider().Meter
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return t.meterProvider.Meter(name, opts...)
}

// Shutdown flushes and stops the SDK providers. Every provider is attempted
// even if an earlier one fails. No-op providers are skipped.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	providers := []struct {
		name     string
		provider any
	}{
		{"tracer", t.tracerProvider},
		{"meter", t.meterProvider},
	}

	var errs []error
	for _, p := range providers {
		s, ok := p.provider.(shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown %s provider: %w", p.name, err))
			continue
		}
		slog.Debug("Telemetry provider stopped", "provider", p.name)
	}
	return errors.Join(errs...)
}
