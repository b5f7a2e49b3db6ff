package observe_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mtkresearch/breeze-asr-go/internal/observe"
)

func TestCorrelationID_NoActiveSpan_ReturnsEmpty(t *testing.T) {
	if id := observe.CorrelationID(context.Background()); id != "" {
		t.Errorf("expected empty correlation ID, got %q", id)
	}
}

func TestCorrelationID_ActiveSpan_ReturnsTraceID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(t.Context()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	id := observe.CorrelationID(ctx)
	if id == "" {
		t.Fatal("expected a trace ID from an active span")
	}
	if want := span.SpanContext().TraceID().String(); id != want {
		t.Errorf("got %q, want %q", id, want)
	}
}

func TestLogger_NoActiveSpan_ReturnsBase(t *testing.T) {
	if l := observe.Logger(context.Background(), nil); l == nil {
		t.Fatal("Logger returned nil")
	}

	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	if l := observe.Logger(context.Background(), base); l != base {
		t.Error("Logger must return base unchanged without an active span")
	}
}

func TestLogger_ActiveSpan_AddsTraceAttributes(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(t.Context()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	observe.Logger(ctx, base).Info("hello")

	line := buf.String()
	if !strings.Contains(line, "trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("log line missing trace_id: %s", line)
	}
	if !strings.Contains(line, "span_id="+span.SpanContext().SpanID().String()) {
		t.Errorf("log line missing span_id: %s", line)
	}
}
