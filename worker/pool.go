// Package worker runs the executor goroutines that process dispatched
// chunks. Workers hold no job state: they receive work items from the
// dispatch channel, invoke the processor through the middleware chain,
// and report the outcome on the result channel. All bookkeeping stays
// with the scheduler.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
	"github.com/xraph/distill/middleware"
	"github.com/xraph/distill/processor"
)

// Pool manages a fixed set of executor goroutines reading from the
// dispatch channel and writing to the result channel.
type Pool struct {
	proc     processor.Processor
	chain    middleware.Middleware
	dispatch <-chan job.WorkItem
	results  chan<- job.Result
	size     int
	logger   *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolSize sets the number of executor goroutines.
func WithPoolSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithMiddleware sets the middleware chain applied around every
// processor call.
func WithMiddleware(mws ...middleware.Middleware) PoolOption {
	return func(p *Pool) { p.chain = middleware.Chain(mws...) }
}

// NewPool creates a worker pool reading work items from dispatch and
// writing outcomes to results.
func NewPool(
	proc processor.Processor,
	dispatch <-chan job.WorkItem,
	results chan<- job.Result,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		proc:     proc,
		chain:    middleware.Chain(),
		dispatch: dispatch,
		results:  results,
		size:     10,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the executor goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting", slog.Int("workers", p.size))

	for range p.size {
		e := newExecutor(p)
		p.wg.Add(1)
		go e.run()
	}

	return nil
}

// Stop signals all executors to stop and waits for in-flight chunks to
// finish. Results for work already in progress are still delivered, so
// the scheduler must keep draining its result channel until Stop
// returns.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out",
			slog.String("error", ctx.Err().Error()))
		return ctx.Err()
	}
}

// executor is a single worker goroutine with its own identity for
// logging.
type executor struct {
	pool *Pool
	id   id.WorkerID
}

func newExecutor(p *Pool) *executor {
	return &executor{pool: p, id: id.NewWorkerID()}
}

func (e *executor) run() {
	defer e.pool.wg.Done()

	for {
		select {
		case <-e.pool.stopCh:
			return
		case item, ok := <-e.pool.dispatch:
			if !ok {
				return
			}
			res := e.execute(item)
			if !e.deliver(item, res) {
				return
			}
		}
	}
}

// deliver sends a result to the scheduler, preferring delivery over
// shutdown when the channel has room.
func (e *executor) deliver(item job.WorkItem, res job.Result) bool {
	select {
	case e.pool.results <- res:
		return true
	default:
	}
	select {
	case e.pool.results <- res:
		return true
	case <-e.pool.stopCh:
		// Shutdown raced the result delivery. The chunk stays
		// dispatched in the store and is recovered on restart.
		e.pool.logger.Warn("result dropped during shutdown",
			slog.String("worker_id", e.id.String()),
			slog.String("job_id", item.JobID.String()),
			slog.String("chunk_id", item.ChunkID.String()),
		)
		return false
	}
}

// execute runs one work item through the middleware chain and converts
// the outcome into a Result. A panicking processor must not take the
// executor goroutine down, even when the Recover middleware is not
// installed.
func (e *executor) execute(item job.WorkItem) (res job.Result) {
	res = job.Result{
		JobID:   item.JobID,
		ChunkID: item.ChunkID,
		Attempt: item.Attempt,
	}

	defer func() {
		if r := recover(); r != nil {
			e.pool.logger.Error("processor panicked",
				slog.String("worker_id", e.id.String()),
				slog.String("chunk_id", item.ChunkID.String()),
				slog.Any("panic", r),
			)
			res.OutputRef = ""
			res.Err = &job.ChunkError{
				Kind:    processor.KindOther,
				Message: "processor panic",
			}
		}
	}()

	start := time.Now()
	out, err := e.pool.chain(context.Background(), item, func(ctx context.Context) (string, error) {
		return e.pool.proc.Process(ctx, item.ContentRef, item.Attempt)
	})
	elapsed := time.Since(start)

	if err != nil {
		res.Err = &job.ChunkError{
			Kind:    processor.KindOf(err),
			Message: err.Error(),
		}
		e.pool.logger.Debug("chunk execution failed",
			slog.String("worker_id", e.id.String()),
			slog.String("chunk_id", item.ChunkID.String()),
			slog.Int("attempt", item.Attempt),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return res
	}

	res.OutputRef = out
	return res
}
