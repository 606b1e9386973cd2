package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/tracefire/internal/replay"
)

// Span attribute keys specific to replayed requests.
const (
	AttrIndex           = attribute.Key("tracefire.index")
	AttrScheduledOffset = attribute.Key("tracefire.scheduled_offset_ms")
	AttrScheduleLag     = attribute.Key("tracefire.schedule_lag_ms")
)

// StartDispatchSpan starts a client span for one dispatch.
func StartDispatchSpan(ctx context.Context, tracer trace.Tracer, method string, d replay.DispatchRecord) (context.Context, trace.Span) {
	spanName := "HTTP " + method
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(d.DispatchedAt),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		AttrIndex.Int(d.Index),
		AttrScheduledOffset.Float64(millis(d.Scheduled)),
		AttrScheduleLag.Float64(millis(d.Lag())),
	)
	return ctx, span
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
