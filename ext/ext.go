package ext

import (
	"context"
	"time"

	"github.com/xraph/distill/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobSubmitted is called after a job is accepted into the queue.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, snap *job.Snapshot) error
}

// JobCompleted is called after every chunk of a job has succeeded.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, snap *job.Snapshot, elapsed time.Duration) error
}

// JobRequeued is called when a partially failed job is granted another
// full attempt.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, snap *job.Snapshot, attempt int, nextRunAt time.Time) error
}

// JobDeadLettered is called when a job exhausts its retry budget and is
// moved to the dead letter queue.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, snap *job.Snapshot) error
}

// ──────────────────────────────────────────────────
// Chunk lifecycle hooks
// ──────────────────────────────────────────────────

// ChunkSucceeded is called after a chunk attempt produces an output.
type ChunkSucceeded interface {
	OnChunkSucceeded(ctx context.Context, res job.Result) error
}

// ChunkRetrying is called when a chunk attempt fails but will run again.
type ChunkRetrying interface {
	OnChunkRetrying(ctx context.Context, res job.Result, delay time.Duration) error
}

// ChunkFailed is called when a chunk attempt fails with no retries left
// in the current job attempt.
type ChunkFailed interface {
	OnChunkFailed(ctx context.Context, res job.Result) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
