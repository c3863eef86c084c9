// Package scheduler contains the control loop that owns all job state
// transitions. A single goroutine dispatches ready jobs to the worker
// pool, applies results, decides retries, and moves exhausted jobs to
// the dead letter queue. No other component mutates the job store, and
// the store lock is never held across a channel operation.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/distill"
	"github.com/xraph/distill/ext"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/retry"
)

// Releaser returns queue slots when jobs reach a terminal status. It is
// implemented by queue.Admission.
type Releaser interface {
	Release()
}

// DeadLetterer persists dead-lettered jobs. It is implemented by
// dlq.Service.
type DeadLetterer interface {
	Push(ctx context.Context, j *job.Job) error
}

// Scheduler runs the control loop. Create one per runtime.
type Scheduler struct {
	store      *job.Store
	dispatcher Dispatcher
	policy     retry.Policy
	dispatch   chan<- job.WorkItem
	results    <-chan job.Result
	admission  Releaser
	deadLetter DeadLetterer
	extensions *ext.Registry
	logger     *slog.Logger

	pollInterval time.Duration

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPolicy sets the retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithAdmission sets the capacity gate whose slots are released when
// jobs reach a terminal status.
func WithAdmission(r Releaser) Option {
	return func(s *Scheduler) { s.admission = r }
}

// WithDeadLetter sets the dead letter sink for jobs that exhaust their
// retry budget.
func WithDeadLetter(d DeadLetterer) Option {
	return func(s *Scheduler) { s.deadLetter = d }
}

// WithExtensions sets the extension registry notified of lifecycle
// events.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Scheduler) { s.extensions = r }
}

// WithPollInterval sets the fallback wake interval. The loop usually
// wakes on submissions, results, and backoff deadlines; the poll is a
// safety net.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// New creates a Scheduler over the given store and channels.
func New(
	store *job.Store,
	dispatch chan<- job.WorkItem,
	results <-chan job.Result,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		store:        store,
		policy:       retry.DefaultPolicy(),
		dispatch:     dispatch,
		results:      results,
		logger:       logger,
		pollInterval: 10 * time.Second,
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(logger)
	}
	return s
}

// Wake pokes the control loop. Called after a submission so new jobs
// dispatch without waiting out the poll interval. Safe to call from any
// goroutine; a wake that arrives while one is already pending is
// coalesced.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the control loop. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.logger.Info("scheduler starting",
		slog.Int("max_chunk_retries", s.policy.MaxChunkRetries),
		slog.Int("max_job_retries", s.policy.MaxJobRetries),
	)

	go s.run()
	return nil
}

// Stop halts the control loop and applies any results already queued.
// The worker pool must be stopped first so no new results arrive while
// the final drain runs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Workers are stopped by now; drain what they delivered before the
	// loop exited so the store reflects every finished chunk.
	s.drainResults(ctx)
	s.logger.Info("scheduler stopped")
	return nil
}

// run is the control loop. It is the only goroutine that mutates the
// job store.
func (s *Scheduler) run() {
	defer close(s.done)

	ctx := context.Background()
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		s.drainResults(ctx)
		if !s.dispatchReady(ctx) {
			return
		}

		// Sleep until the next backoff deadline, capped by the poll
		// interval, unless a submission or result wakes us first.
		d := s.pollInterval
		if wakeAt, ok := s.store.NextWake(); ok {
			if until := time.Until(wakeAt); until < d {
				d = until
			}
			if d < 0 {
				d = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d)

		select {
		case <-s.stopCh:
			return
		case <-s.wake:
		case res := <-s.results:
			s.apply(ctx, res)
		case <-timer.C:
		}
	}
}

// drainResults applies every result currently queued, without blocking.
func (s *Scheduler) drainResults(ctx context.Context) {
	for {
		select {
		case res := <-s.results:
			s.apply(ctx, res)
		default:
			return
		}
	}
}

// dispatchReady sends work items for every job whose NextRunAt has
// elapsed. Returns false when the loop should exit.
func (s *Scheduler) dispatchReady(ctx context.Context) bool {
	for {
		j, ok := s.store.ReadyJob(time.Now().UTC())
		if !ok {
			return true
		}

		items := s.dispatcher.Items(j)
		if err := s.store.MarkDispatched(j.ID, items); err != nil {
			s.logger.Error("mark dispatched failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			return true
		}

		s.logger.Debug("dispatching job",
			slog.String("job_id", j.ID.String()),
			slog.String("doc_id", j.DocID),
			slog.Int("chunks", len(items)),
			slog.Int("job_attempt", j.Attempts),
		)

		for _, item := range items {
			if !s.send(ctx, item) {
				return false
			}
		}
	}
}

// send delivers one work item to the pool. While the dispatch channel
// is full it keeps applying results so workers can always hand back
// outcomes; blocking both directions at once would deadlock the
// runtime.
func (s *Scheduler) send(ctx context.Context, item job.WorkItem) bool {
	for {
		select {
		case s.dispatch <- item:
			return true
		case res := <-s.results:
			s.apply(ctx, res)
		case <-s.stopCh:
			return false
		}
	}
}

// apply folds one worker result into the store and performs the
// follow-on transitions: chunk retry scheduling, job completion, job
// requeue, or dead-lettering.
func (s *Scheduler) apply(ctx context.Context, res job.Result) {
	if res.Err == nil {
		s.applySuccess(ctx, res)
		return
	}
	s.applyFailure(ctx, res)
}

func (s *Scheduler) applySuccess(ctx context.Context, res job.Result) {
	applied, err := s.store.ApplySucceeded(res)
	if err != nil {
		s.discard(res, err)
		return
	}
	s.extensions.EmitChunkSucceeded(ctx, res)

	switch applied.Status {
	case job.StatusDone:
		s.finishJob(ctx, res.JobID)
	case job.StatusPartiallyFailed:
		// A success can be the result that settles the cycle, when a
		// sibling chunk already failed permanently.
		s.settlePartialFailure(ctx, res.JobID, applied.JobAttempts)
	}
}

func (s *Scheduler) applyFailure(ctx context.Context, res job.Result) {
	retryChunk, delay := s.policy.Chunk(res.Attempt, res.Err.Kind)

	applied, err := s.store.ApplyFailed(res, retryChunk, delay)
	if err != nil {
		s.discard(res, err)
		return
	}

	if retryChunk {
		s.logger.Info("chunk retry scheduled",
			slog.String("job_id", res.JobID.String()),
			slog.String("chunk_id", res.ChunkID.String()),
			slog.Int("attempt", res.Attempt),
			slog.String("error_kind", string(res.Err.Kind)),
			slog.Duration("delay", delay),
		)
		s.extensions.EmitChunkRetrying(ctx, res, delay)
		return
	}

	s.logger.Warn("chunk failed permanently for this cycle",
		slog.String("job_id", res.JobID.String()),
		slog.String("chunk_id", res.ChunkID.String()),
		slog.Int("attempt", res.Attempt),
		slog.String("error_kind", string(res.Err.Kind)),
	)
	s.extensions.EmitChunkFailed(ctx, res)

	if applied.Status == job.StatusPartiallyFailed {
		s.settlePartialFailure(ctx, res.JobID, applied.JobAttempts)
	}
}

// settlePartialFailure decides between requeueing the job for another
// full cycle and dead-lettering it.
func (s *Scheduler) settlePartialFailure(ctx context.Context, jobID distill.ID, attempts int) {
	retryJob, delay := s.policy.Job(attempts)
	if retryJob {
		if err := s.store.Requeue(jobID, delay); err != nil {
			s.logger.Error("requeue failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		snap, err := s.store.Get(jobID)
		if err != nil {
			return
		}
		s.logger.Info("job requeued",
			slog.String("job_id", jobID.String()),
			slog.Int("job_attempt", snap.Attempts),
			slog.Duration("delay", delay),
		)
		s.extensions.EmitJobRequeued(ctx, snap, snap.Attempts, snap.NextRunAt)
		return
	}

	dead, err := s.store.DeadLetter(jobID)
	if err != nil {
		s.logger.Error("dead letter transition failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Warn("job dead-lettered",
		slog.String("job_id", jobID.String()),
		slog.String("doc_id", dead.DocID),
		slog.Int("job_attempts", dead.Attempts),
	)

	if s.deadLetter != nil {
		if err := s.deadLetter.Push(ctx, dead); err != nil {
			s.logger.Error("dead letter push failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.admission != nil {
		s.admission.Release()
	}
	if snap, err := s.store.Get(jobID); err == nil {
		s.extensions.EmitJobDeadLettered(ctx, snap)
	}
}

// finishJob settles bookkeeping after the last chunk of a job succeeds.
func (s *Scheduler) finishJob(ctx context.Context, jobID distill.ID) {
	if s.admission != nil {
		s.admission.Release()
	}
	snap, err := s.store.Get(jobID)
	if err != nil {
		return
	}
	elapsed := time.Duration(0)
	if snap.CompletedAt != nil {
		elapsed = snap.CompletedAt.Sub(snap.CreatedAt)
	}
	s.logger.Info("job completed",
		slog.String("job_id", jobID.String()),
		slog.String("doc_id", snap.DocID),
		slog.Duration("elapsed", elapsed),
	)
	s.extensions.EmitJobCompleted(ctx, snap, elapsed)
}

// discard logs a result that could not be applied. Stale results are
// expected after a retry supersedes an in-flight attempt and are logged
// quietly; anything else is a bug.
func (s *Scheduler) discard(res job.Result, err error) {
	if errors.Is(err, distill.ErrStaleResult) {
		s.logger.Debug("stale result discarded",
			slog.String("job_id", res.JobID.String()),
			slog.String("chunk_id", res.ChunkID.String()),
			slog.Int("attempt", res.Attempt),
		)
		return
	}
	s.logger.Error("result could not be applied",
		slog.String("job_id", res.JobID.String()),
		slog.String("chunk_id", res.ChunkID.String()),
		slog.String("error", err.Error()),
	)
}
