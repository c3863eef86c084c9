package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/distill/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobSubmittedEntry struct {
	name string
	hook JobSubmitted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobRequeuedEntry struct {
	name string
	hook JobRequeued
}

type jobDeadLetteredEntry struct {
	name string
	hook JobDeadLettered
}

type chunkSucceededEntry struct {
	name string
	hook ChunkSucceeded
}

type chunkRetryingEntry struct {
	name string
	hook ChunkRetrying
}

type chunkFailedEntry struct {
	name string
	hook ChunkFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobSubmitted    []jobSubmittedEntry
	jobCompleted    []jobCompletedEntry
	jobRequeued     []jobRequeuedEntry
	jobDeadLettered []jobDeadLetteredEntry
	chunkSucceeded  []chunkSucceededEntry
	chunkRetrying   []chunkRetryingEntry
	chunkFailed     []chunkFailedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobSubmitted); ok {
		r.jobSubmitted = append(r.jobSubmitted, jobSubmittedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobRequeued); ok {
		r.jobRequeued = append(r.jobRequeued, jobRequeuedEntry{name, h})
	}
	if h, ok := e.(JobDeadLettered); ok {
		r.jobDeadLettered = append(r.jobDeadLettered, jobDeadLetteredEntry{name, h})
	}
	if h, ok := e.(ChunkSucceeded); ok {
		r.chunkSucceeded = append(r.chunkSucceeded, chunkSucceededEntry{name, h})
	}
	if h, ok := e.(ChunkRetrying); ok {
		r.chunkRetrying = append(r.chunkRetrying, chunkRetryingEntry{name, h})
	}
	if h, ok := e.(ChunkFailed); ok {
		r.chunkFailed = append(r.chunkFailed, chunkFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobSubmitted notifies all extensions that implement JobSubmitted.
func (r *Registry) EmitJobSubmitted(ctx context.Context, snap *job.Snapshot) {
	for _, e := range r.jobSubmitted {
		if err := e.hook.OnJobSubmitted(ctx, snap); err != nil {
			r.logHookError("OnJobSubmitted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, snap *job.Snapshot, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, snap, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRequeued notifies all extensions that implement JobRequeued.
func (r *Registry) EmitJobRequeued(ctx context.Context, snap *job.Snapshot, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRequeued {
		if err := e.hook.OnJobRequeued(ctx, snap, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRequeued", e.name, err)
		}
	}
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, snap *job.Snapshot) {
	for _, e := range r.jobDeadLettered {
		if err := e.hook.OnJobDeadLettered(ctx, snap); err != nil {
			r.logHookError("OnJobDeadLettered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Chunk event emitters
// ──────────────────────────────────────────────────

// EmitChunkSucceeded notifies all extensions that implement ChunkSucceeded.
func (r *Registry) EmitChunkSucceeded(ctx context.Context, res job.Result) {
	for _, e := range r.chunkSucceeded {
		if err := e.hook.OnChunkSucceeded(ctx, res); err != nil {
			r.logHookError("OnChunkSucceeded", e.name, err)
		}
	}
}

// EmitChunkRetrying notifies all extensions that implement ChunkRetrying.
func (r *Registry) EmitChunkRetrying(ctx context.Context, res job.Result, delay time.Duration) {
	for _, e := range r.chunkRetrying {
		if err := e.hook.OnChunkRetrying(ctx, res, delay); err != nil {
			r.logHookError("OnChunkRetrying", e.name, err)
		}
	}
}

// EmitChunkFailed notifies all extensions that implement ChunkFailed.
func (r *Registry) EmitChunkFailed(ctx context.Context, res job.Result) {
	for _, e := range r.chunkFailed {
		if err := e.hook.OnChunkFailed(ctx, res); err != nil {
			r.logHookError("OnChunkFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
