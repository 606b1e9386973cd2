package tracing

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/tracefire/internal/replay"
)

func TestTracingExecutorWrapsEachRequest(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var injected string
	inner := replay.ExecutorFunc(func(ctx context.Context, d replay.DispatchRecord) replay.Response {
		h := make(http.Header)
		InjectHTTPHeaders(ctx, h)
		injected = h.Get("Traceparent")
		if d.Index == 1 {
			return replay.Response{StatusCode: 502, Err: &replay.HTTPError{StatusCode: 502}}
		}
		return replay.Response{StatusCode: 200, BytesRead: 42}
	})

	exec := &tracingExecutor{inner: inner, tracer: tp.Tracer("test"), method: "POST"}

	resp := exec.Execute(context.Background(), replay.DispatchRecord{Index: 0})
	if resp.StatusCode != 200 || resp.BytesRead != 42 {
		t.Fatalf("unexpected response passthrough: %+v", resp)
	}
	if injected == "" {
		t.Fatal("expected traceparent inside the executor context")
	}
	_ = exec.Execute(context.Background(), replay.DispatchRecord{Index: 1})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("first span status = %v, want Ok", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("second span status = %v, want Error", spans[1].Status.Code)
	}
	var status int64
	for _, attr := range spans[1].Attributes {
		if attr.Key == "http.response.status_code" {
			status = attr.Value.AsInt64()
		}
	}
	if status != 502 {
		t.Errorf("status attribute = %d, want 502", status)
	}
}

func TestWrapExecutorDisabledProvider(t *testing.T) {
	inner := replay.ExecutorFunc(func(context.Context, replay.DispatchRecord) replay.Response {
		return replay.Response{}
	})
	p := &Provider{}
	if got := WrapExecutor(inner, p, "POST"); got == nil {
		t.Fatal("WrapExecutor returned nil")
	} else if _, ok := got.(*tracingExecutor); ok {
		t.Fatal("expected disabled provider to leave executor unwrapped")
	}
}
