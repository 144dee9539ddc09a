package agent

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	return NewTracer(tp), sr
}

func TestTracer_StartTurn_RecordsSpan(t *testing.T) {
	tr, sr := newTestTracer(t)

	_, end := tr.StartTurn(context.Background(), "run-1", 2)
	end(nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "agent.turn" {
		t.Errorf("span name = %q, want agent.turn", spans[0].Name())
	}
}

func TestTracer_StartTool_RecordsError(t *testing.T) {
	tr, sr := newTestTracer(t)

	_, end := tr.StartTool(context.Background(), "search", "call-1")
	end(errors.New("boom"))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Description != "boom" {
		t.Errorf("status description = %q, want boom", spans[0].Status().Description)
	}
}

func TestTracer_NilTracerIsNoop(t *testing.T) {
	var tr *Tracer
	ctx, end := tr.StartTurn(context.Background(), "run-1", 0)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	end(nil)
}

func TestNewTracer_DefaultsToGlobalProvider(t *testing.T) {
	tr := NewTracer(nil)
	if tr == nil || tr.tracer == nil {
		t.Fatal("expected a usable tracer")
	}
}
