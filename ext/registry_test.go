package ext

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
)

// recorder implements every hook and records the calls it receives.
type recorder struct {
	name  string
	calls []string
	err   error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnJobSubmitted(context.Context, *job.Snapshot) error {
	r.calls = append(r.calls, "submitted")
	return r.err
}

func (r *recorder) OnJobCompleted(context.Context, *job.Snapshot, time.Duration) error {
	r.calls = append(r.calls, "completed")
	return r.err
}

func (r *recorder) OnJobRequeued(context.Context, *job.Snapshot, int, time.Time) error {
	r.calls = append(r.calls, "requeued")
	return r.err
}

func (r *recorder) OnJobDeadLettered(context.Context, *job.Snapshot) error {
	r.calls = append(r.calls, "dead_lettered")
	return r.err
}

func (r *recorder) OnChunkSucceeded(context.Context, job.Result) error {
	r.calls = append(r.calls, "chunk_succeeded")
	return r.err
}

func (r *recorder) OnChunkRetrying(context.Context, job.Result, time.Duration) error {
	r.calls = append(r.calls, "chunk_retrying")
	return r.err
}

func (r *recorder) OnChunkFailed(context.Context, job.Result) error {
	r.calls = append(r.calls, "chunk_failed")
	return r.err
}

func (r *recorder) OnShutdown(context.Context) error {
	r.calls = append(r.calls, "shutdown")
	return r.err
}

// submitOnly implements only the JobSubmitted hook.
type submitOnly struct {
	called int
}

func (s *submitOnly) Name() string { return "submit-only" }

func (s *submitOnly) OnJobSubmitted(context.Context, *job.Snapshot) error {
	s.called++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_EmitsToAllHooks(t *testing.T) {
	r := NewRegistry(discardLogger())
	rec := &recorder{name: "rec"}
	r.Register(rec)

	ctx := context.Background()
	snap := &job.Snapshot{ID: id.NewJobID()}
	res := job.Result{JobID: snap.ID, ChunkID: id.NewChunkID(), Attempt: 1}

	r.EmitJobSubmitted(ctx, snap)
	r.EmitJobCompleted(ctx, snap, time.Second)
	r.EmitJobRequeued(ctx, snap, 1, time.Now())
	r.EmitJobDeadLettered(ctx, snap)
	r.EmitChunkSucceeded(ctx, res)
	r.EmitChunkRetrying(ctx, res, time.Second)
	r.EmitChunkFailed(ctx, res)
	r.EmitShutdown(ctx)

	want := []string{
		"submitted", "completed", "requeued", "dead_lettered",
		"chunk_succeeded", "chunk_retrying", "chunk_failed", "shutdown",
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, rec.calls[i], want[i])
		}
	}
}

func TestRegistry_PartialImplementation(t *testing.T) {
	r := NewRegistry(discardLogger())
	s := &submitOnly{}
	r.Register(s)

	ctx := context.Background()
	snap := &job.Snapshot{ID: id.NewJobID()}

	// Only the implemented hook fires; the rest are no-ops.
	r.EmitJobSubmitted(ctx, snap)
	r.EmitJobCompleted(ctx, snap, time.Second)
	r.EmitShutdown(ctx)

	if s.called != 1 {
		t.Errorf("called = %d, want 1", s.called)
	}
}

func TestRegistry_HookErrorsSwallowed(t *testing.T) {
	r := NewRegistry(discardLogger())
	failing := &recorder{name: "failing", err: errors.New("hook exploded")}
	after := &submitOnly{}
	r.Register(failing)
	r.Register(after)

	// A failing hook must not prevent later extensions from running.
	r.EmitJobSubmitted(context.Background(), &job.Snapshot{ID: id.NewJobID()})

	if after.called != 1 {
		t.Errorf("extension after failing hook not notified")
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := NewRegistry(discardLogger())
	r.Register(&recorder{name: "a"})
	r.Register(&submitOnly{})

	if got := len(r.Extensions()); got != 2 {
		t.Errorf("Extensions = %d, want 2", got)
	}
}
