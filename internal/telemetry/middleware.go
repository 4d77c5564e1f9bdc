package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsMeterName scopes the request instruments
const HTTPMetricsMeterName = "github.com/dreampalaces/placesync/http"

// latencyBuckets spans a cache hit (milliseconds) up to a cold bootstrap (seconds)
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// HTTPMetrics records per-request counters and latency.
// A nil *HTTPMetrics is valid and records nothing.
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the request instruments on provider.
// A nil provider yields nil metrics.
func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(HTTPMetricsMeterName)

	var m HTTPMetrics
	var err, errs error

	m.requestDuration, err = meter.Float64Histogram("placesync_http_request_duration_seconds",
		metric.WithDescription("Time spent serving a request"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	errs = errors.Join(errs, err)

	m.requestsTotal, err = meter.Int64Counter("placesync_http_requests_total",
		metric.WithDescription("Requests served, by route and status"),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	m.activeRequests, err = meter.Int64UpDownCounter("placesync_http_active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"))
	errs = errors.Join(errs, err)

	if errs != nil {
		return nil, errs
	}
	return &m, nil
}

// Middleware wraps next with request accounting
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		m.activeRequests.Add(ctx, 1)
		defer func() {
			m.activeRequests.Add(ctx, -1)

			// chi fills in the pattern while routing, so read it afterwards
			labels := metric.WithAttributeSet(attribute.NewSet(
				attribute.String("method", r.Method),
				attribute.String("route", getRoutePattern(r)),
				attribute.String("status_code", strconv.Itoa(ww.Status())),
			))
			m.requestDuration.Record(ctx, time.Since(start).Seconds(), labels)
			m.requestsTotal.Add(ctx, 1, labels)
		}()

		next.ServeHTTP(ww, r)
	})
}

// MetricsMiddleware builds HTTPMetrics on provider and returns its middleware
func MetricsMiddleware(provider metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	metrics, err := NewHTTPMetrics(provider)
	if err != nil {
		return nil, err
	}
	return metrics.Middleware, nil
}
