package dlq

import (
	"time"

	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/processor"
)

// ChunkRecord preserves the final state of one chunk at the moment the
// job was dead-lettered. ContentRef is kept so the chunk can be
// resubmitted on replay.
type ChunkRecord struct {
	ChunkID    id.ChunkID          `json:"chunk_id"`
	ContentRef string              `json:"content_ref"`
	Status     job.ChunkStatus     `json:"status"`
	Attempts   int                 `json:"attempts"`
	ErrorKind  processor.ErrorKind `json:"error_kind,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Entry represents a job that has exhausted its retry budget and been
// moved to the dead letter queue for inspection or replay.
type Entry struct {
	ID         id.DLQID      `json:"id"`
	JobID      id.JobID      `json:"job_id"`
	DocID      string        `json:"doc_id"`
	Attempts   int           `json:"attempts"`
	Chunks     []ChunkRecord `json:"chunks"`
	FailedAt   time.Time     `json:"failed_at"`
	ReplayedAt *time.Time    `json:"replayed_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// FailedChunks returns the records of chunks that had not succeeded
// when the job was dead-lettered.
func (e *Entry) FailedChunks() []ChunkRecord {
	var out []ChunkRecord
	for _, c := range e.Chunks {
		if c.Status != job.ChunkSucceeded {
			out = append(out, c)
		}
	}
	return out
}
