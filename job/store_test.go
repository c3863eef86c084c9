package job

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/id"
	"github.com/xraph/distill/processor"
)

func testSpecs(n int) []ChunkSpec {
	specs := make([]ChunkSpec, n)
	for i := range specs {
		specs[i] = ChunkSpec{ID: id.NewChunkID(), ContentRef: "chunk-ref"}
	}
	return specs
}

// dispatchAll marks every pending chunk of the next ready job dispatched
// and returns the work items, mimicking the scheduler's dispatch step.
func dispatchAll(t *testing.T, s *Store, now time.Time) (*Job, []WorkItem) {
	t.Helper()
	j, ok := s.ReadyJob(now)
	if !ok {
		t.Fatal("expected a ready job")
	}
	var items []WorkItem
	for i := range j.Chunks {
		if j.Chunks[i].Status != ChunkPending {
			continue
		}
		items = append(items, WorkItem{
			JobID:      j.ID,
			ChunkID:    j.Chunks[i].ID,
			ContentRef: j.Chunks[i].ContentRef,
			Attempt:    j.Chunks[i].Attempts + 1,
		})
	}
	if err := s.MarkDispatched(j.ID, items); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	return j, items
}

func TestSubmit_InitialState(t *testing.T) {
	s := NewStore()
	snap, err := s.Submit("doc-abc", testSpecs(3))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if snap.Status != StatusPending {
		t.Errorf("status = %q, want %q", snap.Status, StatusPending)
	}
	if snap.ChunkCounts[ChunkPending] != 3 {
		t.Errorf("pending chunks = %d, want 3", snap.ChunkCounts[ChunkPending])
	}
	if s.Active() != 1 {
		t.Errorf("active = %d, want 1", s.Active())
	}
}

func TestSubmit_ZeroChunksIsTerminalFailed(t *testing.T) {
	s := NewStore()
	snap, err := s.Submit("doc-empty", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if snap.Status != StatusFailed {
		t.Errorf("status = %q, want %q", snap.Status, StatusFailed)
	}
	if snap.CompletedAt == nil {
		t.Error("expected a completion timestamp")
	}
	if s.Active() != 0 {
		t.Errorf("active = %d, want 0 (failed submission holds no slot)", s.Active())
	}
	if _, ok := s.ReadyJob(time.Now().Add(time.Hour)); ok {
		t.Error("terminal job must never become ready")
	}
}

func TestGet_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	snap, _ := s.Submit("doc-abc", testSpecs(1))

	got, err := s.Get(snap.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Mutating the snapshot must not leak into the store.
	got.Chunks[0].Status = ChunkSucceeded
	got.Status = StatusDone

	again, _ := s.Get(snap.ID)
	if again.Status != StatusPending || again.Chunks[0].Status != ChunkPending {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestGet_Unknown(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(id.NewJobID()); !errors.Is(err, distill.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestReadyJob_OrderedByNextRunAtThenSubmission(t *testing.T) {
	base := time.Unix(1000, 0).UTC()
	now := base
	s := NewStore(WithClock(func() time.Time { return now }))

	first, _ := s.Submit("doc-1", testSpecs(1))
	second, _ := s.Submit("doc-2", testSpecs(1))

	// Same NextRunAt: FIFO tie-break.
	j, ok := s.ReadyJob(base)
	if !ok || j.ID.String() != first.ID.String() {
		t.Fatalf("expected first submitted job, got %v", j)
	}

	// Push the first job's readiness into the future; the second wins.
	if err := s.MarkDispatched(first.ID, []WorkItem{{
		JobID: first.ID, ChunkID: j.Chunks[0].ID, Attempt: 1,
	}}); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	res := Result{JobID: first.ID, ChunkID: j.Chunks[0].ID, Attempt: 1,
		Err: &ChunkError{Kind: processor.KindUpstreamUnavailable, Message: "503"}}
	if _, err := s.ApplyFailed(res, true, time.Minute); err != nil {
		t.Fatalf("ApplyFailed: %v", err)
	}

	j, ok = s.ReadyJob(base)
	if !ok || j.ID.String() != second.ID.String() {
		t.Fatalf("expected second job to be ready, got %+v", j)
	}

	// At base+1m both are ready again; earliest NextRunAt (second, still
	// at base) wins over the delayed first.
	j, ok = s.ReadyJob(base.Add(time.Minute))
	if !ok || j.ID.String() != second.ID.String() {
		t.Fatalf("expected second job (earlier NextRunAt), got %+v", j)
	}
}

func TestMarkDispatched_RejectsWrongAttempt(t *testing.T) {
	s := NewStore()
	snap, _ := s.Submit("doc-abc", testSpecs(1))

	err := s.MarkDispatched(snap.ID, []WorkItem{{
		JobID: snap.ID, ChunkID: snap.Chunks[0].ID, Attempt: 2,
	}})
	if err == nil {
		t.Fatal("expected error for attempt number that skips ahead")
	}
}

func TestMarkDispatched_RejectedBatchMutatesNothing(t *testing.T) {
	s := NewStore()
	snap, _ := s.Submit("doc-abc", testSpecs(2))

	// Second item is invalid; the first must not end up dispatched with
	// no work item behind it.
	err := s.MarkDispatched(snap.ID, []WorkItem{
		{JobID: snap.ID, ChunkID: snap.Chunks[0].ID, Attempt: 1},
		{JobID: snap.ID, ChunkID: snap.Chunks[1].ID, Attempt: 5},
	})
	if err == nil {
		t.Fatal("expected error for attempt number that skips ahead")
	}

	after, err := s.Get(snap.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i, c := range after.Chunks {
		if c.Status != ChunkPending {
			t.Errorf("chunk %d status = %q, want %q", i, c.Status, ChunkPending)
		}
		if c.Attempts != 0 {
			t.Errorf("chunk %d attempts = %d, want 0", i, c.Attempts)
		}
	}
}

func TestApplySucceeded_AllChunks(t *testing.T) {
	s := NewStore()
	s.Submit("doc-abc", testSpecs(3))
	j, items := dispatchAll(t, s, time.Now())

	for i, item := range items {
		applied, err := s.ApplySucceeded(Result{
			JobID: j.ID, ChunkID: item.ChunkID, Attempt: item.Attempt, OutputRef: "out",
		})
		if err != nil {
			t.Fatalf("ApplySucceeded: %v", err)
		}
		if i < len(items)-1 && applied.Status != StatusRunning {
			t.Errorf("status after %d results = %q, want %q", i+1, applied.Status, StatusRunning)
		}
		if i == len(items)-1 && applied.Status != StatusDone {
			t.Errorf("final status = %q, want %q", applied.Status, StatusDone)
		}
	}

	if s.Active() != 0 {
		t.Errorf("active = %d, want 0 after completion", s.Active())
	}
	snap, _ := s.Get(j.ID)
	if snap.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
}

func TestApplyFailed_RetryResetsChunkAndDelaysJob(t *testing.T) {
	base := time.Unix(2000, 0).UTC()
	s := NewStore(WithClock(func() time.Time { return base }))
	s.Submit("doc-abc", testSpecs(1))
	j, items := dispatchAll(t, s, base)

	applied, err := s.ApplyFailed(Result{
		JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1,
		Err: &ChunkError{Kind: processor.KindTimeout, Message: "deadline exceeded"},
	}, true, 30*time.Second)
	if err != nil {
		t.Fatalf("ApplyFailed: %v", err)
	}
	if applied.Status != StatusPending {
		t.Errorf("status = %q, want %q (single pending chunk, no attempts)", applied.Status, StatusPending)
	}

	snap, _ := s.Get(j.ID)
	if snap.Chunks[0].Status != ChunkPending {
		t.Errorf("chunk status = %q, want pending", snap.Chunks[0].Status)
	}
	if snap.Chunks[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (attempts only increase)", snap.Chunks[0].Attempts)
	}
	if snap.Chunks[0].LastError == nil || snap.Chunks[0].LastError.Kind != processor.KindTimeout {
		t.Errorf("last error not retained: %+v", snap.Chunks[0].LastError)
	}
	if want := base.Add(30 * time.Second); !snap.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", snap.NextRunAt, want)
	}

	// Not ready before the delay elapses, ready after.
	if _, ok := s.ReadyJob(base); ok {
		t.Error("job should not be ready during backoff")
	}
	if _, ok := s.ReadyJob(base.Add(30 * time.Second)); !ok {
		t.Error("job should be ready once backoff elapsed")
	}
}

func TestApplyFailed_ExhaustMarksPartiallyFailed(t *testing.T) {
	s := NewStore()
	s.Submit("doc-abc", testSpecs(2))
	j, items := dispatchAll(t, s, time.Now())

	if _, err := s.ApplySucceeded(Result{
		JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1, OutputRef: "out",
	}); err != nil {
		t.Fatalf("ApplySucceeded: %v", err)
	}

	applied, err := s.ApplyFailed(Result{
		JobID: j.ID, ChunkID: items[1].ChunkID, Attempt: 1,
		Err: &ChunkError{Kind: processor.KindSchemaValidation, Message: "missing field"},
	}, false, 0)
	if err != nil {
		t.Fatalf("ApplyFailed: %v", err)
	}
	if applied.Status != StatusPartiallyFailed {
		t.Errorf("status = %q, want %q", applied.Status, StatusPartiallyFailed)
	}
}

func TestApply_StaleResultDiscarded(t *testing.T) {
	s := NewStore()
	s.Submit("doc-abc", testSpecs(1))
	j, items := dispatchAll(t, s, time.Now())

	// First attempt fails and the chunk is reset for retry.
	if _, err := s.ApplyFailed(Result{
		JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1,
		Err: &ChunkError{Kind: processor.KindUpstreamUnavailable, Message: "503"},
	}, true, 0); err != nil {
		t.Fatalf("ApplyFailed: %v", err)
	}

	// A replayed success for the superseded attempt must not resurrect
	// the chunk.
	_, err := s.ApplySucceeded(Result{
		JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1, OutputRef: "stale",
	})
	if !errors.Is(err, distill.ErrStaleResult) {
		t.Fatalf("err = %v, want ErrStaleResult", err)
	}

	snap, _ := s.Get(j.ID)
	if snap.Chunks[0].Status != ChunkPending {
		t.Errorf("chunk status = %q, want pending (stale result must not apply)", snap.Chunks[0].Status)
	}
	if snap.Chunks[0].OutputRef != "" {
		t.Error("stale output must not be recorded")
	}

	// Dispatch attempt 2 and replay the attempt-1 result once more.
	_, items = dispatchAll(t, s, time.Now().Add(time.Hour))
	_, err = s.ApplySucceeded(Result{
		JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1, OutputRef: "stale",
	})
	if !errors.Is(err, distill.ErrStaleResult) {
		t.Fatalf("err = %v, want ErrStaleResult for attempt mismatch", err)
	}
}

func TestApply_UnknownJob(t *testing.T) {
	s := NewStore()
	_, err := s.ApplySucceeded(Result{JobID: id.NewJobID(), ChunkID: id.NewChunkID(), Attempt: 1})
	if !errors.Is(err, distill.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestRequeue_ResetsFailedChunksWithFreshBudget(t *testing.T) {
	base := time.Unix(3000, 0).UTC()
	s := NewStore(WithClock(func() time.Time { return base }))
	s.Submit("doc-abc", testSpecs(2))
	j, items := dispatchAll(t, s, base)

	s.ApplySucceeded(Result{JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1, OutputRef: "out"})
	s.ApplyFailed(Result{
		JobID: j.ID, ChunkID: items[1].ChunkID, Attempt: 1,
		Err: &ChunkError{Kind: processor.KindOther, Message: "boom"},
	}, false, 0)

	if err := s.Requeue(j.ID, time.Minute); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	snap, _ := s.Get(j.ID)
	if snap.Status != StatusRunning {
		t.Errorf("status = %q, want %q after requeue", snap.Status, StatusRunning)
	}
	if snap.Attempts != 1 {
		t.Errorf("job attempts = %d, want 1", snap.Attempts)
	}
	if snap.Chunks[1].Status != ChunkPending || snap.Chunks[1].Attempts != 0 {
		t.Errorf("failed chunk not reset: %+v", snap.Chunks[1])
	}
	if snap.Chunks[0].Status != ChunkSucceeded {
		t.Error("succeeded chunk must keep its result across a requeue")
	}
	if want := base.Add(time.Minute); !snap.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", snap.NextRunAt, want)
	}
}

func TestDeadLetter(t *testing.T) {
	s := NewStore()
	s.Submit("doc-abc", testSpecs(1))
	j, items := dispatchAll(t, s, time.Now())

	s.ApplyFailed(Result{
		JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1,
		Err: &ChunkError{Kind: processor.KindOther, Message: "boom"},
	}, false, 0)

	dead, err := s.DeadLetter(j.ID)
	if err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	if dead.Status != StatusDeadLettered {
		t.Errorf("status = %q, want %q", dead.Status, StatusDeadLettered)
	}
	if s.Active() != 0 {
		t.Errorf("active = %d, want 0", s.Active())
	}

	// Dead-lettering a job twice is a programming error.
	if _, err := s.DeadLetter(j.ID); err == nil {
		t.Error("expected error dead-lettering a terminal job")
	}
}

func TestEvict_OnlyTerminal(t *testing.T) {
	s := NewStore()
	snap, _ := s.Submit("doc-abc", testSpecs(1))

	if err := s.Evict(snap.ID); !errors.Is(err, distill.ErrJobNotTerminal) {
		t.Fatalf("err = %v, want ErrJobNotTerminal", err)
	}

	j, items := dispatchAll(t, s, time.Now())
	s.ApplySucceeded(Result{JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1, OutputRef: "out"})

	if err := s.Evict(snap.ID); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := s.Get(snap.ID); !errors.Is(err, distill.ErrJobNotFound) {
		t.Error("evicted job should be gone")
	}
}

func TestPurgeTerminal(t *testing.T) {
	base := time.Unix(4000, 0).UTC()
	now := base
	s := NewStore(WithClock(func() time.Time { return now }))

	done, _ := s.Submit("doc-1", testSpecs(1))
	j, items := dispatchAll(t, s, base)
	s.ApplySucceeded(Result{JobID: j.ID, ChunkID: items[0].ChunkID, Attempt: 1, OutputRef: "out"})

	s.Submit("doc-2", testSpecs(1)) // still pending, must survive

	now = base.Add(time.Hour)
	if got := s.PurgeTerminal(base.Add(time.Minute)); got != 1 {
		t.Fatalf("purged = %d, want 1", got)
	}
	if _, err := s.Get(done.ID); !errors.Is(err, distill.ErrJobNotFound) {
		t.Error("terminal job should have been purged")
	}
	if len(s.List()) != 1 {
		t.Errorf("remaining jobs = %d, want 1", len(s.List()))
	}
}

func TestNextWake(t *testing.T) {
	base := time.Unix(5000, 0).UTC()
	s := NewStore(WithClock(func() time.Time { return base }))

	if _, ok := s.NextWake(); ok {
		t.Error("empty store must report nothing to wake for")
	}

	s.Submit("doc-1", testSpecs(1))
	wake, ok := s.NextWake()
	if !ok || !wake.Equal(base) {
		t.Errorf("wake = %v ok=%v, want %v", wake, ok, base)
	}
}
