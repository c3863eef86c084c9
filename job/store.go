package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/id"
)

// Applied reports the outcome of applying a result to the store: the
// recomputed job status and the job-level attempt count, which the
// scheduler needs for the requeue-versus-dead-letter decision.
type Applied struct {
	Status      Status
	JobAttempts int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source. Used in tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store owns the canonical map of job ID → record plus the submission
// order. Submit and the read methods are safe for any goroutine; the
// mutators (MarkDispatched, ApplySucceeded, ApplyFailed, Requeue,
// DeadLetter) must be called only from the scheduler goroutine. The lock
// is held only for the brief apply/dispatch step, never across channel
// operations or Processor calls, so submissions are never stalled behind
// processing latency.
type Store struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []id.JobID
	// active counts non-terminal jobs; terminal jobs stay readable until
	// evicted but no longer occupy a capacity slot.
	active int
	now    func() time.Time
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Submission and reads
// ──────────────────────────────────────────────────

// Submit creates a job in pending state with every chunk pending. A job
// submitted with zero chunks is created terminally Failed: the record is
// queryable but never dispatched and never occupies a capacity slot.
func (s *Store) Submit(docID string, specs []ChunkSpec) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	j := &Job{
		ID:        id.NewJobID(),
		DocID:     docID,
		Status:    StatusPending,
		NextRunAt: now,
	}
	j.CreatedAt = now
	j.UpdatedAt = now

	if len(specs) == 0 {
		j.Status = StatusFailed
		j.LastError = distill.ErrNoChunks.Error()
		j.CompletedAt = &now
	} else {
		j.Chunks = make([]ChunkState, len(specs))
		for i, spec := range specs {
			j.Chunks[i] = ChunkState{
				ID:         spec.ID,
				ContentRef: spec.ContentRef,
				Status:     ChunkPending,
			}
		}
		s.active++
	}

	s.jobs[j.ID.String()] = j
	s.order = append(s.order, j.ID)
	return snapshotOf(j), nil
}

// Get returns a read-only copy of the job, safe for concurrent readers.
func (s *Store) Get(jobID id.JobID) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, distill.ErrJobNotFound
	}
	return snapshotOf(j), nil
}

// List returns snapshots of all jobs in submission order, terminal jobs
// included until they are evicted.
func (s *Store) List() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Snapshot, 0, len(s.order))
	for _, jobID := range s.order {
		if j, ok := s.jobs[jobID.String()]; ok {
			out = append(out, snapshotOf(j))
		}
	}
	return out
}

// Active returns the number of non-terminal jobs.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Evict removes a terminal job from the store. Eviction timing is the
// caller's policy; the store only requires that the job is terminal.
func (s *Store) Evict(jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return distill.ErrJobNotFound
	}
	if !j.Status.Terminal() {
		return distill.ErrJobNotTerminal
	}
	s.remove(jobID)
	return nil
}

// PurgeTerminal evicts terminal jobs not updated since the given time.
// Returns the number of jobs removed.
func (s *Store) PurgeTerminal(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var victims []id.JobID
	for _, jobID := range s.order {
		j, ok := s.jobs[jobID.String()]
		if ok && j.Status.Terminal() && j.UpdatedAt.Before(olderThan) {
			victims = append(victims, jobID)
		}
	}
	for _, jobID := range victims {
		s.remove(jobID)
	}
	return len(victims)
}

func (s *Store) remove(jobID id.JobID) {
	delete(s.jobs, jobID.String())
	for i, other := range s.order {
		if other.String() == jobID.String() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ──────────────────────────────────────────────────
// Scheduler-only mutators
// ──────────────────────────────────────────────────

// ReadyJob returns a deep copy of the job that should be dispatched next:
// non-terminal, at least one pending chunk, NextRunAt elapsed. Readiness
// ordering is NextRunAt first, submission order as the tie-break.
func (s *Store) ReadyJob(now time.Time) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Job
	for _, jobID := range s.order {
		j, ok := s.jobs[jobID.String()]
		if !ok || !dispatchable(j) || j.NextRunAt.After(now) {
			continue
		}
		if best == nil || j.NextRunAt.Before(best.NextRunAt) {
			best = j
		}
	}
	if best == nil {
		return nil, false
	}
	return clone(best), true
}

// NextWake returns the earliest NextRunAt across jobs with pending chunks.
// The second return is false when nothing is waiting to run.
func (s *Store) NextWake() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	found := false
	for _, j := range s.jobs {
		if !dispatchable(j) {
			continue
		}
		if !found || j.NextRunAt.Before(earliest) {
			earliest = j.NextRunAt
			found = true
		}
	}
	return earliest, found
}

func dispatchable(j *Job) bool {
	if j.Status.Terminal() {
		return false
	}
	for i := range j.Chunks {
		if j.Chunks[i].Status == ChunkPending {
			return true
		}
	}
	return false
}

// MarkDispatched records that work items are in flight: each named chunk
// moves Pending → Dispatched and its attempt counter advances to the
// item's attempt number. Called only by the scheduler, after ReadyJob and
// before any channel send.
func (s *Store) MarkDispatched(jobID id.JobID, items []WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return distill.ErrJobNotFound
	}

	// Validate every item before mutating any chunk. A rejected batch
	// must leave no chunk dispatched without a work item behind it.
	chunks := make([]*ChunkState, len(items))
	for i, item := range items {
		c := findChunk(j, item.ChunkID)
		if c == nil {
			return fmt.Errorf("job: mark dispatched %s: %w", item.ChunkID, distill.ErrChunkNotFound)
		}
		if c.Status != ChunkPending {
			return fmt.Errorf("job: mark dispatched %s: chunk is %s, not pending", item.ChunkID, c.Status)
		}
		if item.Attempt != c.Attempts+1 {
			return fmt.Errorf("job: mark dispatched %s: attempt %d does not follow %d", item.ChunkID, item.Attempt, c.Attempts)
		}
		chunks[i] = c
	}
	for i, item := range items {
		chunks[i].Status = ChunkDispatched
		chunks[i].Attempts = item.Attempt
	}

	j.Status = ComputeStatus(j.Chunks, j.Attempts)
	j.UpdatedAt = s.now().UTC()
	return nil
}

// ApplySucceeded applies a success result. Stale results — the chunk is
// not dispatched, or the attempt number does not match — are rejected with
// ErrStaleResult and must be discarded by the caller.
func (s *Store) ApplySucceeded(res Result) (Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, c, err := s.resolve(res)
	if err != nil {
		return Applied{}, err
	}

	c.Status = ChunkSucceeded
	c.OutputRef = res.OutputRef
	c.LastError = nil

	return s.recompute(j), nil
}

// ApplyFailed applies a failure result. When retry is true the chunk is
// reset to pending and the job's NextRunAt is pushed out by delay;
// otherwise the chunk is failed permanently for this job cycle.
func (s *Store) ApplyFailed(res Result, retry bool, delay time.Duration) (Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, c, err := s.resolve(res)
	if err != nil {
		return Applied{}, err
	}

	c.LastError = res.Err
	if retry {
		c.Status = ChunkPending
		j.NextRunAt = s.now().UTC().Add(delay)
	} else {
		c.Status = ChunkFailed
	}

	return s.recompute(j), nil
}

// Requeue gives a partially failed job another full cycle: failed chunks
// reset to pending with a fresh attempt budget, the job-level attempt
// counter advances, and NextRunAt is pushed out by delay.
func (s *Store) Requeue(jobID id.JobID, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return distill.ErrJobNotFound
	}
	if j.Status != StatusPartiallyFailed {
		return fmt.Errorf("job: requeue %s: job is %s, not partially failed", jobID, j.Status)
	}

	for i := range j.Chunks {
		if j.Chunks[i].Status == ChunkFailed {
			j.Chunks[i].Status = ChunkPending
			j.Chunks[i].Attempts = 0
		}
	}
	j.Attempts++
	j.NextRunAt = s.now().UTC().Add(delay)
	j.Status = ComputeStatus(j.Chunks, j.Attempts)
	j.UpdatedAt = s.now().UTC()
	return nil
}

// DeadLetter transitions a partially failed job to its terminal
// dead-lettered state and returns a deep copy for the dead letter queue.
func (s *Store) DeadLetter(jobID id.JobID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, distill.ErrJobNotFound
	}
	if j.Status != StatusPartiallyFailed {
		return nil, fmt.Errorf("job: dead letter %s: job is %s, not partially failed", jobID, j.Status)
	}

	j.Status = StatusDeadLettered
	j.UpdatedAt = s.now().UTC()
	s.active--
	return clone(j), nil
}

// resolve locates the job and chunk a result refers to, enforcing the
// attempt-number match that guards against double-counting after a retry
// has already reset the chunk.
func (s *Store) resolve(res Result) (*Job, *ChunkState, error) {
	j, ok := s.jobs[res.JobID.String()]
	if !ok {
		return nil, nil, distill.ErrJobNotFound
	}
	c := findChunk(j, res.ChunkID)
	if c == nil {
		return nil, nil, distill.ErrChunkNotFound
	}
	if c.Status != ChunkDispatched || c.Attempts != res.Attempt {
		return nil, nil, distill.ErrStaleResult
	}
	return j, c, nil
}

// recompute re-derives the job status after a result application and
// settles terminal bookkeeping. Callers must hold the lock.
func (s *Store) recompute(j *Job) Applied {
	now := s.now().UTC()
	j.UpdatedAt = now
	j.Status = ComputeStatus(j.Chunks, j.Attempts)
	if j.Status == StatusDone {
		j.CompletedAt = &now
		s.active--
	}
	return Applied{Status: j.Status, JobAttempts: j.Attempts}
}

func findChunk(j *Job, chunkID id.ChunkID) *ChunkState {
	for i := range j.Chunks {
		if j.Chunks[i].ID.String() == chunkID.String() {
			return &j.Chunks[i]
		}
	}
	return nil
}
