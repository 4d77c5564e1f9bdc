package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tracing *TracingConfig
		wantSDK bool
	}{
		{name: "nil config is no-op"},
		{name: "disabled is no-op", tracing: &TracingConfig{Enabled: false, Sampling: 1}},
		{name: "half sampled", tracing: &TracingConfig{Enabled: true, Sampling: 0.5}, wantSDK: true},
		{name: "default sampling", tracing: &TracingConfig{Enabled: true}, wantSDK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			tp, err := NewTracerProvider(ctx, tt.tracing,
				WithService("placesync-test", "0.0.1"),
				WithCollector(newCollector(t), true),
			)
			require.NoError(t, err)

			if !tt.wantSDK {
				assert.IsType(t, noop.TracerProvider{}, tp)
				return
			}

			sdkTP, ok := tp.(*sdktrace.TracerProvider)
			require.True(t, ok, "expected SDK tracer provider, got %T", tp)

			_, span := sdkTP.Tracer("test").Start(ctx, "probe")
			span.End()
			require.NoError(t, sdkTP.Shutdown(ctx))
		})
	}
}
