package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Getters(t *testing.T) {
	t.Parallel()

	empty := &Config{}
	assert.Equal(t, DefaultServiceName, empty.GetServiceName())
	assert.Equal(t, "unknown", empty.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, empty.GetEndpoint())

	set := &Config{ServiceName: "places-edge", ServiceVersion: "1.2.3", Endpoint: "otel:4318"}
	assert.Equal(t, "places-edge", set.GetServiceName())
	assert.Equal(t, "1.2.3", set.GetServiceVersion())
	assert.Equal(t, "otel:4318", set.GetEndpoint())
}

func TestTracingConfig_GetSampling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sampling float64
		expected float64
	}{
		{name: "unset uses default", sampling: 0, expected: DefaultSampling},
		{name: "explicit half", sampling: 0.5, expected: 0.5},
		{name: "explicit full", sampling: 1, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, (&TracingConfig{Sampling: tt.sampling}).GetSampling())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{
			name:   "nil config is valid",
			config: nil,
		},
		{
			name: "disabled config skips validation",
			config: &Config{
				Enabled: false,
				Tracing: &TracingConfig{Enabled: true, Sampling: 2},
			},
		},
		{
			name: "valid sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 0.25},
			},
		},
		{
			name: "sampling above one",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name: "negative sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: -0.1},
			},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name: "endpoint with scheme",
			config: &Config{
				Enabled:  true,
				Endpoint: "http://otel-collector:4318",
			},
			wantErr: "endpoint must be host:port without a scheme",
		},
		{
			name: "prometheus only",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Prometheus: true, DisableOTLP: true},
			},
		},
		{
			name: "no metrics exporter",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, DisableOTLP: true},
			},
			wantErr: "metrics: at least one exporter is required",
		},
		{
			name: "disabled metrics skip exporter check",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: false, DisableOTLP: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PrometheusEnabled(t *testing.T) {
	t.Parallel()

	var nilConfig *Config
	assert.False(t, nilConfig.PrometheusEnabled())
	assert.False(t, (&Config{Metrics: &MetricsConfig{Enabled: true, Prometheus: true}}).PrometheusEnabled())
	assert.False(t, (&Config{Enabled: true, Metrics: &MetricsConfig{Prometheus: true}}).PrometheusEnabled())
	assert.True(t, (&Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}}).PrometheusEnabled())
}
