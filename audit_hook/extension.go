package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/distill/ext"
	"github.com/xraph/distill/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobSubmitted    = (*Extension)(nil)
	_ ext.JobCompleted    = (*Extension)(nil)
	_ ext.JobRequeued     = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.ChunkSucceeded  = (*Extension)(nil)
	_ ext.ChunkRetrying   = (*Extension)(nil)
	_ ext.ChunkFailed     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package carries no backend dependency; callers
// inject their concrete audit client at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges lifecycle events to an audit trail backend. Each
// lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (e *Extension) OnJobSubmitted(ctx context.Context, snap *job.Snapshot) error {
	return e.record(ctx, ActionJobSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceJob, snap.ID.String(), CategoryJob, nil,
		"doc_id", snap.DocID,
		"chunks", len(snap.Chunks),
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, snap *job.Snapshot, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, snap.ID.String(), CategoryJob, nil,
		"doc_id", snap.DocID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRequeued implements ext.JobRequeued.
func (e *Extension) OnJobRequeued(ctx context.Context, snap *job.Snapshot, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRequeued, SeverityWarning, OutcomeFailure,
		ResourceJob, snap.ID.String(), CategoryJob, nil,
		"doc_id", snap.DocID,
		"attempt", attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, snap *job.Snapshot) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceJob, snap.ID.String(), CategoryJob, nil,
		"doc_id", snap.DocID,
		"attempts", snap.Attempts,
		"failed_chunks", snap.ChunkCounts[job.ChunkFailed],
	)
}

// ── Chunk lifecycle hooks ───────────────────────────

// OnChunkSucceeded implements ext.ChunkSucceeded.
func (e *Extension) OnChunkSucceeded(ctx context.Context, res job.Result) error {
	return e.record(ctx, ActionChunkSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceChunk, res.ChunkID.String(), CategoryChunk, nil,
		"job_id", res.JobID.String(),
		"attempt", res.Attempt,
		"output_ref", res.OutputRef,
	)
}

// OnChunkRetrying implements ext.ChunkRetrying.
func (e *Extension) OnChunkRetrying(ctx context.Context, res job.Result, delay time.Duration) error {
	return e.record(ctx, ActionChunkRetrying, SeverityWarning, OutcomeFailure,
		ResourceChunk, res.ChunkID.String(), CategoryChunk, res.Err,
		"job_id", res.JobID.String(),
		"attempt", res.Attempt,
		"delay_ms", delay.Milliseconds(),
	)
}

// OnChunkFailed implements ext.ChunkFailed.
func (e *Extension) OnChunkFailed(ctx context.Context, res job.Result) error {
	return e.record(ctx, ActionChunkFailed, SeverityCritical, OutcomeFailure,
		ResourceChunk, res.ChunkID.String(), CategoryChunk, res.Err,
		"job_id", res.JobID.String(),
		"attempt", res.Attempt,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	chunkErr *job.ChunkError,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if chunkErr != nil {
		reason = chunkErr.Message
		meta["error"] = chunkErr.Message
		meta["error_kind"] = string(chunkErr.Kind)
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
