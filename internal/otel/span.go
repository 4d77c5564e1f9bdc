// Package otel provides small OpenTelemetry helpers shared by the sync pipeline and the API.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on placesync spans
const (
	AttrUpstreamBase  = attribute.Key("upstream.base")
	AttrUpstreamTable = attribute.Key("upstream.table")
	AttrPageNumber    = attribute.Key("pagination.page")
	AttrPageSize      = attribute.Key("pagination.limit")
	AttrHasOffset     = attribute.Key("pagination.has_offset")
	AttrResultCount   = attribute.Key("result.count")
	AttrAttemptID     = attribute.Key("sync.attempt_id")
	AttrSyncTrigger   = attribute.Key("sync.trigger")
	AttrSyncStage     = attribute.Key("sync.stage")
	AttrFeatureCount  = attribute.Key("sync.feature_count")
	AttrRetryAttempt  = attribute.Key("http.retry_count")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. The status carries a generic description; the
// error text goes into the exception event only.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
