package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/distill/job"
	"github.com/xraph/distill/processor"
)

// meterName is the instrumentation scope name for distill metrics.
const meterName = "github.com/xraph/distill"

// Metrics returns middleware that records per-chunk execution metrics
// using the global OTel MeterProvider. If no MeterProvider is
// configured, noop instruments are used and this middleware becomes a
// pass-through.
//
// Instruments:
//   - distill.chunk.duration (Float64Histogram): execution time in
//     seconds, with attributes: status ("ok" or "error"), error_kind
//   - distill.chunk.executions (Int64Counter): total executions,
//     with attributes: status ("ok" or "error"), error_kind
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"distill.chunk.duration",
		metric.WithDescription("Duration of chunk processing in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"distill.chunk.executions",
		metric.WithDescription("Total number of chunk executions"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, item job.WorkItem, next Handler) (string, error) {
		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		kind := ""
		if err != nil {
			status = "error"
			kind = string(processor.KindOf(err))
		}

		attrs := metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("error_kind", kind),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return out, err
	}
}
