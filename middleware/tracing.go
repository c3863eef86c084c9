package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/distill/job"
)

// tracerName is the instrumentation scope name for distill tracing.
const tracerName = "github.com/xraph/distill"

// Tracing returns middleware that wraps chunk processing in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: distill.job.id, distill.chunk.id,
// distill.chunk.attempt, distill.chunk.content_ref. On error, the span
// status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, item job.WorkItem, next Handler) (string, error) {
		ctx, span := tracer.Start(ctx, "distill.chunk.process",
			trace.WithAttributes(
				attribute.String("distill.job.id", item.JobID.String()),
				attribute.String("distill.chunk.id", item.ChunkID.String()),
				attribute.Int("distill.chunk.attempt", item.Attempt),
				attribute.String("distill.chunk.content_ref", item.ContentRef),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
