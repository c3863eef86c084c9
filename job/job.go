package job

import (
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/id"
	"github.com/xraph/distill/processor"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting for its first dispatch.
	StatusPending Status = "pending"
	// StatusRunning means at least one chunk is in flight or the job is
	// mid-cycle between retries.
	StatusRunning Status = "running"
	// StatusPartiallyFailed means at least one chunk exhausted its retry
	// budget and nothing remains in flight. The job is then requeued or
	// dead-lettered depending on the job-level attempt budget.
	StatusPartiallyFailed Status = "partially_failed"
	// StatusDone means every chunk succeeded.
	StatusDone Status = "done"
	// StatusFailed means the job was rejected at submission time
	// (for example, zero chunks produced). Terminal immediately.
	StatusFailed Status = "failed"
	// StatusDeadLettered means the job exhausted its job-level retry
	// budget. Resubmission requires an operator decision.
	StatusDeadLettered Status = "dead_lettered"
)

// Terminal reports whether s is a terminal job status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusDeadLettered
}

// ChunkStatus represents the lifecycle state of a single chunk.
type ChunkStatus string

const (
	// ChunkPending means the chunk is waiting to be dispatched.
	ChunkPending ChunkStatus = "pending"
	// ChunkDispatched means a work item for the chunk is in flight.
	ChunkDispatched ChunkStatus = "dispatched"
	// ChunkSucceeded means the chunk's extraction completed. A succeeded
	// chunk is never re-dispatched.
	ChunkSucceeded ChunkStatus = "succeeded"
	// ChunkFailed means the chunk exhausted its retry budget for this
	// job cycle. A job-level retry resets it to ChunkPending with a
	// fresh attempt budget.
	ChunkFailed ChunkStatus = "failed"
)

// ChunkError records the most recent failure of a chunk.
type ChunkError struct {
	Kind    processor.ErrorKind `json:"kind"`
	Message string              `json:"message"`
}

// ChunkSpec describes one chunk at submission time. ContentRef identifies
// the chunk content owned by the collaborator that produced it; the queue
// never copies the content itself.
type ChunkSpec struct {
	ID         id.ChunkID `json:"id"`
	ContentRef string     `json:"content_ref"`
}

// ChunkState is the queue's view of one chunk.
type ChunkState struct {
	ID         id.ChunkID  `json:"id"`
	ContentRef string      `json:"content_ref"`
	Status     ChunkStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	LastError  *ChunkError `json:"last_error,omitempty"`
	OutputRef  string      `json:"output_ref,omitempty"`
}

// Job is one document's processing unit. Chunk order is document order and
// is preserved for deterministic reassembly.
type Job struct {
	distill.Entity

	ID          id.JobID     `json:"id"`
	DocID       string       `json:"doc_id"`
	Status      Status       `json:"status"`
	Chunks      []ChunkState `json:"chunks"`
	Attempts    int          `json:"attempts"`
	NextRunAt   time.Time    `json:"next_run_at"`
	LastError   string       `json:"last_error,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// WorkItem is the scheduler→worker message for one chunk attempt.
// Immutable once created.
type WorkItem struct {
	JobID      id.JobID   `json:"job_id"`
	ChunkID    id.ChunkID `json:"chunk_id"`
	ContentRef string     `json:"content_ref"`
	Attempt    int        `json:"attempt"`
}

// Result is the worker→scheduler message for one chunk attempt.
// Err is nil on success; Attempt attributes the result to the exact
// dispatch it answers so stale results can be discarded.
type Result struct {
	JobID     id.JobID    `json:"job_id"`
	ChunkID   id.ChunkID  `json:"chunk_id"`
	Attempt   int         `json:"attempt"`
	OutputRef string      `json:"output_ref,omitempty"`
	Err       *ChunkError `json:"err,omitempty"`
}

// Snapshot is a read-only copy of a job, safe for concurrent readers.
type Snapshot struct {
	ID          id.JobID            `json:"id"`
	DocID       string              `json:"doc_id"`
	Status      Status              `json:"status"`
	Attempts    int                 `json:"attempts"`
	NextRunAt   time.Time           `json:"next_run_at"`
	LastError   string              `json:"last_error,omitempty"`
	Chunks      []ChunkState        `json:"chunks"`
	ChunkCounts map[ChunkStatus]int `json:"chunk_counts"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// clone returns a deep copy of j.
func clone(j *Job) *Job {
	cp := *j
	cp.Chunks = cloneChunks(j.Chunks)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func cloneChunks(chunks []ChunkState) []ChunkState {
	out := make([]ChunkState, len(chunks))
	copy(out, chunks)
	for i := range out {
		if out[i].LastError != nil {
			e := *out[i].LastError
			out[i].LastError = &e
		}
	}
	return out
}

// snapshotOf builds a Snapshot from a job record. Callers must hold the
// store lock; the returned value shares nothing with the record.
func snapshotOf(j *Job) *Snapshot {
	snap := &Snapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Status:      j.Status,
		Attempts:    j.Attempts,
		NextRunAt:   j.NextRunAt,
		LastError:   j.LastError,
		Chunks:      cloneChunks(j.Chunks),
		ChunkCounts: make(map[ChunkStatus]int, 4),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	for i := range j.Chunks {
		snap.ChunkCounts[j.Chunks[i].Status]++
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		snap.CompletedAt = &at
	}
	return snap
}
