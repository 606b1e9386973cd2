package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/tracefire/internal/replay"
)

type tracingExecutor struct {
	inner  replay.Executor
	tracer trace.Tracer
	method string
}

// WrapExecutor runs every request inside a client span. The span context is
// carried on ctx so the inner executor can inject it into request headers.
// A provider that exports nothing leaves exec unchanged.
func WrapExecutor(exec replay.Executor, p *Provider, method string) replay.Executor {
	if !p.Enabled() {
		return exec
	}
	return &tracingExecutor{inner: exec, tracer: p.Tracer(), method: method}
}

func (t *tracingExecutor) Execute(ctx context.Context, d replay.DispatchRecord) replay.Response {
	ctx, span := StartDispatchSpan(ctx, t.tracer, t.method, d)
	resp := t.inner.Execute(ctx, d)

	attrs := []attribute.KeyValue{attribute.Int64("http.response.body.size", resp.BytesRead)}
	if resp.StatusCode > 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
	}
	EndSpan(span, resp.Err, attrs...)
	return resp
}
