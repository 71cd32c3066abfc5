package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/trellis/queue"
)

// tracerName is the instrumentation scope name for trellis tracing.
const tracerName = "github.com/xraph/trellis"

// Tracing returns middleware that wraps operation dispatch in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: trellis.op.id, trellis.op.kind, and
// trellis.node.id (empty for creations). On error, the span status is
// set to codes.Error with the error message.
func Tracing() queue.Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) queue.Middleware {
	return func(ctx context.Context, op *queue.Operation, next queue.Handler) error {
		ctx, span := tracer.Start(ctx, "trellis.op.dispatch",
			trace.WithAttributes(
				attribute.String("trellis.op.id", op.ID.String()),
				attribute.String("trellis.op.kind", string(op.Kind)),
				attribute.String("trellis.node.id", op.Target().String()),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
