package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this package's spans to whatever OTLP
// backend the host process exports to.
const instrumentationName = "github.com/haasonsaas/nexus/internal/agent"

// Tracer wraps an OpenTelemetry tracer with the span shapes the loop and
// executor need: one span per turn, one span per tool execution. A nil
// *Tracer still works — its Start methods return the context unchanged and
// a no-op end function — so callers never need to nil-check before starting
// a span.
type Tracer struct {
	tracer oteltrace.Tracer
}

// NewTracer builds a Tracer from the given TracerProvider. Pass nil to use
// whatever global provider otel.SetTracerProvider installed (a no-op tracer
// if none was set, e.g. in tests).
func NewTracer(tp oteltrace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// StartTurn opens a span covering one inner-loop turn (stream + tool
// execution). Call the returned end func with the terminal error (nil on
// success) when the turn completes.
func (t *Tracer) StartTurn(ctx context.Context, runID string, turnIndex int) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "agent.turn",
		oteltrace.WithAttributes(
			attribute.String("agent.run_id", runID),
			attribute.Int("agent.turn_index", turnIndex),
		))
	return ctx, func(err error) { endSpan(span, err) }
}

// StartStream opens a span covering one provider Stream call (one attempt;
// streamWithRetry opens a new span per retry so backoff time is visible).
func (t *Tracer) StartStream(ctx context.Context, provider, model string, attempt int) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "agent.stream",
		oteltrace.WithAttributes(
			attribute.String("agent.provider", provider),
			attribute.String("agent.model", model),
			attribute.Int("agent.attempt", attempt),
		))
	return ctx, func(err error) { endSpan(span, err) }
}

// StartTool opens a span covering one tool execution.
func (t *Tracer) StartTool(ctx context.Context, toolName, toolCallID string) (context.Context, func(error)) {
	if t == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "agent.tool",
		oteltrace.WithAttributes(
			attribute.String("agent.tool_name", toolName),
			attribute.String("agent.tool_call_id", toolCallID),
		))
	return ctx, func(err error) { endSpan(span, err) }
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
