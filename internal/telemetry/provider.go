package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderOption configures NewTracerProvider and NewMeterProvider
type ProviderOption func(*providerSettings)

// providerSettings is what both providers share: who we are and where to export
type providerSettings struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool

	// registerer receives the Prometheus collector; metrics only
	registerer prometheus.Registerer
}

func newProviderSettings(opts []ProviderOption) *providerSettings {
	s := &providerSettings{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithService sets the service.name and service.version resource attributes.
// Empty values keep the defaults.
func WithService(name, version string) ProviderOption {
	return func(s *providerSettings) {
		if name != "" {
			s.serviceName = name
		}
		if version != "" {
			s.serviceVersion = version
		}
	}
}

// WithCollector sets the OTLP collector in host:port form
func WithCollector(endpoint string, insecure bool) ProviderOption {
	return func(s *providerSettings) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
		s.insecure = insecure
	}
}

// WithPrometheusRegisterer sets where the Prometheus reader registers its collector.
// It is only used when MetricsConfig.Prometheus is set.
func WithPrometheusRegisterer(reg prometheus.Registerer) ProviderOption {
	return func(s *providerSettings) {
		s.registerer = reg
	}
}

// providerOptionsFrom turns the root telemetry config into provider options
func providerOptionsFrom(c *Config) []ProviderOption {
	return []ProviderOption{
		WithService(c.GetServiceName(), c.GetServiceVersion()),
		WithCollector(c.GetEndpoint(), c.Insecure),
	}
}

// resource describes this process. resource.New avoids the schema URL
// conflicts that merging with resource.Default() runs into.
func (s *providerSettings) resource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
