package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
)

// Submitter resubmits a document's chunks as a new job. It is
// implemented by the engine so replayed entries re-enter the runtime
// through the normal admission path.
type Submitter interface {
	Submit(ctx context.Context, docID string, specs []job.ChunkSpec) (*job.Snapshot, error)
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store     Store
	submitter Submitter
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a DLQ service. The submitter may be nil if replay
// is not needed (for example in status-only deployments).
func NewService(store Store, submitter Submitter, opts ...Option) *Service {
	s := &Service{store: store, submitter: submitter, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Push builds a DLQ Entry from a dead-lettered job and persists it.
// Every chunk is recorded, succeeded ones included, so the entry shows
// the full shape of the job at the time of failure.
func (s *Service) Push(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:       id.NewDLQID(),
		JobID:    j.ID,
		DocID:    j.DocID,
		Attempts: j.Attempts,
		FailedAt: now,
	}
	entry.CreatedAt = now

	entry.Chunks = make([]ChunkRecord, 0, len(j.Chunks))
	for _, c := range j.Chunks {
		rec := ChunkRecord{
			ChunkID:    c.ID,
			ContentRef: c.ContentRef,
			Status:     c.Status,
			Attempts:   c.Attempts,
		}
		if c.LastError != nil {
			rec.ErrorKind = c.LastError.Kind
			rec.Error = c.LastError.Message
		}
		entry.Chunks = append(entry.Chunks, rec)
	}

	return s.store.PushDLQ(ctx, entry)
}

// Replay resubmits a DLQ entry's document as a new job with fresh
// retry budgets and marks the entry as replayed. All chunks are
// resubmitted, not only the failed ones, so the new job produces a
// complete result set.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Snapshot, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.ReplayedAt != nil {
		return nil, distill.ErrAlreadyReplayed
	}

	specs := make([]job.ChunkSpec, 0, len(entry.Chunks))
	for _, c := range entry.Chunks {
		specs = append(specs, job.ChunkSpec{
			ID:         id.NewChunkID(),
			ContentRef: c.ContentRef,
		})
	}

	// Submit before marking. An admission rejection must leave the
	// entry replayable; a failed mark after a successful submit only
	// risks a duplicate job, never lost work.
	snap, err := s.submitter.Submit(ctx, entry.DocID, specs)
	if err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		s.logger.Error("dlq entry could not be marked replayed",
			slog.String("entry_id", entryID.String()),
			slog.String("job_id", snap.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return snap, nil
}

// Store returns the underlying DLQ store for direct access to List,
// Get, Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
