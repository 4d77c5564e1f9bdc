package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/dreampalaces/placesync/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for refresh metrics
type SyncMetrics struct {
	syncDuration     metric.Float64Histogram
	featuresTotal    metric.Int64Gauge
	refreshRequests  metric.Int64Counter
	rateLimitedTotal metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"placesync_sync_duration_seconds",
		metric.WithDescription("Duration of fetch, transform and commit runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	featuresTotal, err := meter.Int64Gauge(
		"placesync_features_total",
		metric.WithDescription("Number of features in the cached document"),
		metric.WithUnit("{feature}"),
	)
	if err != nil {
		return nil, err
	}

	refreshRequests, err := meter.Int64Counter(
		"placesync_refresh_requests_total",
		metric.WithDescription("Manual refresh requests by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitedTotal, err := meter.Int64Counter(
		"placesync_upstream_rate_limited_total",
		metric.WithDescription("Upstream responses with HTTP 429"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:     syncDuration,
		featuresTotal:    featuresTotal,
		refreshRequests:  refreshRequests,
		rateLimitedTotal: rateLimitedTotal,
	}, nil
}

// RecordSyncDuration records how long one pipeline run took
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, trigger string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFeatureCount records the size of the cached document
func (m *SyncMetrics) RecordFeatureCount(ctx context.Context, count int64) {
	if m == nil || m.featuresTotal == nil {
		return
	}
	m.featuresTotal.Record(ctx, count)
}

// RecordRefreshRequest counts a manual refresh by its result (refreshed, throttled, unauthorized, failed)
func (m *SyncMetrics) RecordRefreshRequest(ctx context.Context, result string) {
	if m == nil || m.refreshRequests == nil {
		return
	}
	m.refreshRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRateLimited counts one HTTP 429 from upstream
func (m *SyncMetrics) RecordRateLimited(ctx context.Context, page int) {
	if m == nil || m.rateLimitedTotal == nil {
		return
	}
	m.rateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.Int("page", page)))
}
