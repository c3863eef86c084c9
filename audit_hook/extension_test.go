package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	audithook "github.com/xraph/distill/audit_hook"
	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/processor"
)

// sink collects every recorded event.
type sink struct {
	events []*audithook.AuditEvent
	err    error
}

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func testSnapshot() *job.Snapshot {
	return &job.Snapshot{
		ID:       id.NewJobID(),
		DocID:    "doc-1",
		Status:   job.StatusPending,
		Attempts: 1,
		ChunkCounts: map[job.ChunkStatus]int{
			job.ChunkFailed: 2,
		},
	}
}

func failedResult() job.Result {
	return job.Result{
		JobID:   id.NewJobID(),
		ChunkID: id.NewChunkID(),
		Attempt: 2,
		Err:     &job.ChunkError{Kind: processor.KindUpstreamUnavailable, Message: "connection refused"},
	}
}

func TestExtension_JobSubmitted(t *testing.T) {
	s := &sink{}
	e := audithook.New(s)

	snap := testSnapshot()
	if err := e.OnJobSubmitted(context.Background(), snap); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}
	if len(s.events) != 1 {
		t.Fatalf("events = %d, want 1", len(s.events))
	}

	evt := s.events[0]
	if evt.Action != audithook.ActionJobSubmitted {
		t.Errorf("action = %q, want %q", evt.Action, audithook.ActionJobSubmitted)
	}
	if evt.Severity != audithook.SeverityInfo {
		t.Errorf("severity = %q, want info", evt.Severity)
	}
	if evt.ResourceID != snap.ID.String() {
		t.Errorf("resource ID = %q, want %q", evt.ResourceID, snap.ID)
	}
	if evt.Metadata["doc_id"] != "doc-1" {
		t.Errorf("doc_id = %v, want doc-1", evt.Metadata["doc_id"])
	}
}

func TestExtension_DeadLetterIsCritical(t *testing.T) {
	s := &sink{}
	e := audithook.New(s)

	if err := e.OnJobDeadLettered(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("OnJobDeadLettered: %v", err)
	}
	evt := s.events[0]
	if evt.Severity != audithook.SeverityCritical {
		t.Errorf("severity = %q, want critical", evt.Severity)
	}
	if evt.Outcome != audithook.OutcomeFailure {
		t.Errorf("outcome = %q, want failure", evt.Outcome)
	}
	if evt.Metadata["failed_chunks"] != 2 {
		t.Errorf("failed_chunks = %v, want 2", evt.Metadata["failed_chunks"])
	}
}

func TestExtension_ChunkErrorMetadata(t *testing.T) {
	s := &sink{}
	e := audithook.New(s)

	res := failedResult()
	if err := e.OnChunkRetrying(context.Background(), res, 5*time.Second); err != nil {
		t.Fatalf("OnChunkRetrying: %v", err)
	}
	evt := s.events[0]
	if evt.Reason != "connection refused" {
		t.Errorf("reason = %q", evt.Reason)
	}
	if evt.Metadata["error_kind"] != string(processor.KindUpstreamUnavailable) {
		t.Errorf("error_kind = %v", evt.Metadata["error_kind"])
	}
	if evt.Metadata["delay_ms"] != int64(5000) {
		t.Errorf("delay_ms = %v, want 5000", evt.Metadata["delay_ms"])
	}
}

func TestExtension_ActionFiltering(t *testing.T) {
	s := &sink{}
	e := audithook.New(s, audithook.WithActions(audithook.ActionChunkFailed))

	ctx := context.Background()
	_ = e.OnJobSubmitted(ctx, testSnapshot())
	_ = e.OnChunkSucceeded(ctx, job.Result{JobID: id.NewJobID(), ChunkID: id.NewChunkID()})
	_ = e.OnChunkFailed(ctx, failedResult())

	if len(s.events) != 1 {
		t.Fatalf("events = %d, want 1", len(s.events))
	}
	if s.events[0].Action != audithook.ActionChunkFailed {
		t.Errorf("action = %q, want %q", s.events[0].Action, audithook.ActionChunkFailed)
	}
}

func TestExtension_RecorderErrorsAreSwallowed(t *testing.T) {
	s := &sink{err: errors.New("backend down")}
	e := audithook.New(s)

	// Hook errors must never propagate into the control loop.
	if err := e.OnJobCompleted(context.Background(), testSnapshot(), time.Second); err != nil {
		t.Fatalf("OnJobCompleted returned %v, want nil", err)
	}
}

func TestAllActionsCoversEveryConstant(t *testing.T) {
	all := audithook.AllActions()
	if len(all) != 7 {
		t.Fatalf("AllActions = %d entries, want 7", len(all))
	}
	seen := make(map[string]bool, len(all))
	for _, a := range all {
		if seen[a] {
			t.Errorf("duplicate action %q", a)
		}
		seen[a] = true
	}
}
