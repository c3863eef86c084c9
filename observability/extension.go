package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/distill/ext"
	"github.com/xraph/distill/job"
)

const meterName = "github.com/xraph/distill/observability"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobSubmitted    = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRequeued     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.ChunkSucceeded  = (*MetricsExtension)(nil)
	_ ext.ChunkRetrying   = (*MetricsExtension)(nil)
	_ ext.ChunkFailed     = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters. Register it as an
// extension to track submission rates, completion latency, requeues,
// dead letters, and per-chunk outcomes by error kind.
type MetricsExtension struct {
	jobSubmitted   metric.Int64Counter
	jobCompleted   metric.Int64Counter
	jobRequeued    metric.Int64Counter
	jobDeadLetter  metric.Int64Counter
	jobDuration    metric.Float64Histogram
	chunkSucceeded metric.Int64Counter
	chunkRetried   metric.Int64Counter
	chunkFailed    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the given
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.jobSubmitted, _ = meter.Int64Counter("distill.job.submitted",
		metric.WithDescription("Jobs accepted into the queue"))
	m.jobCompleted, _ = meter.Int64Counter("distill.job.completed",
		metric.WithDescription("Jobs whose chunks all succeeded"))
	m.jobRequeued, _ = meter.Int64Counter("distill.job.requeued",
		metric.WithDescription("Partially failed jobs granted another attempt"))
	m.jobDeadLetter, _ = meter.Int64Counter("distill.job.dead_lettered",
		metric.WithDescription("Jobs moved to the dead letter queue"))
	m.jobDuration, _ = meter.Float64Histogram("distill.job.duration",
		metric.WithDescription("Submission-to-completion time in seconds"),
		metric.WithUnit("s"))
	m.chunkSucceeded, _ = meter.Int64Counter("distill.chunk.succeeded",
		metric.WithDescription("Chunk attempts that produced an output"))
	m.chunkRetried, _ = meter.Int64Counter("distill.chunk.retried",
		metric.WithDescription("Chunk attempts scheduled for another run"))
	m.chunkFailed, _ = meter.Int64Counter("distill.chunk.failed",
		metric.WithDescription("Chunk attempts with no retries left"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, _ *job.Snapshot) error {
	m.jobSubmitted.Add(ctx, 1)
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, _ *job.Snapshot, elapsed time.Duration) error {
	m.jobCompleted.Add(ctx, 1)
	m.jobDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnJobRequeued implements ext.JobRequeued.
func (m *MetricsExtension) OnJobRequeued(ctx context.Context, _ *job.Snapshot, _ int, _ time.Time) error {
	m.jobRequeued.Add(ctx, 1)
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, _ *job.Snapshot) error {
	m.jobDeadLetter.Add(ctx, 1)
	return nil
}

// ── Chunk lifecycle hooks ───────────────────────────

// OnChunkSucceeded implements ext.ChunkSucceeded.
func (m *MetricsExtension) OnChunkSucceeded(ctx context.Context, _ job.Result) error {
	m.chunkSucceeded.Add(ctx, 1)
	return nil
}

// OnChunkRetrying implements ext.ChunkRetrying.
func (m *MetricsExtension) OnChunkRetrying(ctx context.Context, res job.Result, _ time.Duration) error {
	m.chunkRetried.Add(ctx, 1, metric.WithAttributes(kindAttr(res)))
	return nil
}

// OnChunkFailed implements ext.ChunkFailed.
func (m *MetricsExtension) OnChunkFailed(ctx context.Context, res job.Result) error {
	m.chunkFailed.Add(ctx, 1, metric.WithAttributes(kindAttr(res)))
	return nil
}

func kindAttr(res job.Result) attribute.KeyValue {
	kind := "unknown"
	if res.Err != nil {
		kind = string(res.Err.Kind)
	}
	return attribute.String("error.kind", kind)
}
