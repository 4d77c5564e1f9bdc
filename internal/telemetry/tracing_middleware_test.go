package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// newTestTracerProvider creates a tracer provider backed by an in-memory exporter
func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func spanAttributes(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracingMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	wrapped := TracingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "120", rr.Header().Get("Retry-After"))
	assert.Equal(t, `{"ok":true}`, rr.Body.String())
}

func TestTracingMiddleware_SpanStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		wantCode   codes.Code
		wantDesc   string
	}{
		{name: "ok", statusCode: http.StatusOK, wantCode: codes.Ok},
		{name: "not modified", statusCode: http.StatusNotModified, wantCode: codes.Ok},
		{name: "unauthorized leaves status unset", statusCode: http.StatusUnauthorized, wantCode: codes.Unset},
		{
			name:       "bootstrap failure",
			statusCode: http.StatusServiceUnavailable,
			wantCode:   codes.Error,
			wantDesc:   http.StatusText(http.StatusServiceUnavailable),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tp := newTestTracerProvider(t)
			wrapped := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/places.geojson", nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantCode, spans[0].Status.Code)
			assert.Equal(t, tt.wantDesc, spans[0].Status.Description)
			assert.Equal(t, int64(tt.statusCode), spanAttributes(spans[0])[semconv.HTTPResponseStatusCodeKey].AsInt64())
		})
	}
}

func TestTracingMiddleware_TraceContextExtraction(t *testing.T) {
	t.Parallel()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	exporter, tp := newTestTracerProvider(t)
	wrapped := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	const traceID = "0af7651916cd43dd8448eb211c80319c"
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-b7ad6b7169203331-01")
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, traceID, spans[0].SpanContext.TraceID().String())
}

func TestTracingMiddleware_RoutePattern(t *testing.T) {
	t.Parallel()

	t.Run("chi route", func(t *testing.T) {
		t.Parallel()

		exporter, tp := newTestTracerProvider(t)
		r := chi.NewRouter()
		r.Use(TracingMiddleware(tp))
		r.Get("/api/{doc}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/places.geojson", nil)
		req.Header.Set("User-Agent", "placesync-test/1.0")
		r.ServeHTTP(httptest.NewRecorder(), req)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "GET /api/{doc}", spans[0].Name)

		attrs := spanAttributes(spans[0])
		assert.Equal(t, "/api/{doc}", attrs[semconv.HTTPRouteKey].AsString())
		assert.Equal(t, "/api/places.geojson", attrs[semconv.URLPathKey].AsString())
		assert.Equal(t, http.MethodGet, attrs[semconv.HTTPRequestMethodKey].AsString())
		assert.Equal(t, "placesync-test/1.0", attrs[semconv.UserAgentOriginalKey].AsString())
	})

	t.Run("no router", func(t *testing.T) {
		t.Parallel()

		exporter, tp := newTestTracerProvider(t)
		wrapped := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/some/path", nil))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "GET unknown_route", spans[0].Name)
	})
}

func TestTracingMiddleware_SkipsProbes(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/health", "/readiness", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			t.Parallel()

			exporter, tp := newTestTracerProvider(t)
			called := false
			wrapped := TracingMiddleware(tp)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

			assert.True(t, called)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Empty(t, exporter.GetSpans())
		})
	}
}

func TestTruncateUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "curl/8.5.0", truncateUserAgent("curl/8.5.0"))
	exact := strings.Repeat("a", MaxUserAgentLength)
	assert.Equal(t, exact, truncateUserAgent(exact))
	assert.Equal(t, exact, truncateUserAgent(exact+strings.Repeat("b", 50)))
}
