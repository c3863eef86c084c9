// Package engine wires the distill subsystems together. It builds the
// job store, admission gate, scheduler, worker pool, and dead letter
// service, and provides the Submit and Replay operations.
//
// This package exists to break the import cycle: the root distill
// package defines Entity and the sentinel errors (imported by job, dlq,
// and the rest) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/distill"
	"github.com/xraph/distill/backoff"
	"github.com/xraph/distill/dlq"
	"github.com/xraph/distill/ext"
	"github.com/xraph/distill/id"
	"github.com/xraph/distill/job"
	mw "github.com/xraph/distill/middleware"
	"github.com/xraph/distill/observability"
	"github.com/xraph/distill/processor"
	"github.com/xraph/distill/queue"
	"github.com/xraph/distill/retry"
	"github.com/xraph/distill/scheduler"
	"github.com/xraph/distill/worker"
)

// Engine owns the wired runtime components and the submission path.
// Use Build() to create one from a Runtime and a Processor.
type Engine struct {
	rt         *distill.Runtime
	store      *job.Store
	admission  *queue.Admission
	scheduler  *scheduler.Scheduler
	pool       *worker.Pool
	dlqService *dlq.Service
	extensions *ext.Registry

	bo  backoff.Strategy
	mws []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu     sync.Mutex
	closed bool
}

// The DLQ service replays entries back through the normal submission
// path.
var _ dlq.Submitter = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the chain applied around every
// chunk, after the built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the chunk retry backoff strategy. If not set, an
// exponential strategy over the runtime's configured base and cap is
// used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTracerProvider sets a custom OTel TracerProvider.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build wires an Engine from a Runtime and the processor run for each
// chunk. The Runtime's pool, scheduler, and extension registry are set
// here; call rt.Start afterwards.
//
// If the Runtime's output store also implements dlq.Store, jobs that
// exhaust their retry budget are recorded there and become replayable.
// Otherwise dead-lettered jobs are only logged.
func Build(rt *distill.Runtime, proc processor.Processor, opts ...Option) (*Engine, error) {
	if proc == nil {
		return nil, distill.ErrNoProcessor
	}
	logger := rt.Logger()
	cfg := rt.Config()

	eng := &Engine{
		rt:         rt,
		store:      job.NewStore(),
		extensions: ext.NewRegistry(logger),
	}
	eng.admission = queue.NewAdmission(queue.Config{
		Capacity:    cfg.QueueCapacity,
		SubmitRate:  cfg.SubmitRate,
		SubmitBurst: cfg.SubmitBurst,
	})

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.NewExponential(cfg.BaseBackoff, cfg.MaxBackoff)
	}
	policy := retry.Policy{
		MaxChunkRetries: cfg.MaxChunkRetries,
		MaxJobRetries:   cfg.MaxJobRetries,
		Backoff:         eng.bo,
	}

	// Wire the DLQ when the output store can hold entries.
	if ds, ok := rt.Outputs().(dlq.Store); ok {
		eng.dlqService = dlq.NewService(ds, eng, dlq.WithLogger(logger))
	} else {
		logger.Warn("output store has no dead letter support, exhausted jobs are dropped")
	}

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/distill"))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/distill"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the lifecycle metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter("github.com/xraph/distill/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Built-in stack: recover → tracing → metrics → logging → timeout.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(cfg.ProcessTimeout),
	}
	allMws = append(allMws, eng.mws...)

	dispatchCh := make(chan job.WorkItem, cfg.DispatchBuffer)
	resultCh := make(chan job.Result, cfg.ResultBuffer)

	eng.pool = worker.NewPool(proc, dispatchCh, resultCh, logger,
		worker.WithPoolSize(cfg.Workers),
		worker.WithMiddleware(allMws...),
	)

	schedOpts := []scheduler.Option{
		scheduler.WithPolicy(policy),
		scheduler.WithAdmission(eng.admission),
		scheduler.WithExtensions(eng.extensions),
		scheduler.WithPollInterval(cfg.PollInterval),
	}
	if eng.dlqService != nil {
		schedOpts = append(schedOpts, scheduler.WithDeadLetter(eng.dlqService))
	}
	eng.scheduler = scheduler.New(eng.store, dispatchCh, resultCh, logger, schedOpts...)

	rt.SetPool(eng.pool)
	rt.SetScheduler(eng.scheduler)
	rt.SetExtensions(eng.extensions)

	return eng, nil
}

// Submit admits a new extraction job for the given document. The call
// fails with distill.ErrCapacityExceeded when the active-job cap is
// reached and distill.ErrSubmitThrottled when submissions arrive faster
// than the configured rate. A submission with zero chunks creates a
// terminally failed record and does not hold a capacity slot.
func (eng *Engine) Submit(ctx context.Context, docID string, specs []job.ChunkSpec) (*job.Snapshot, error) {
	eng.mu.Lock()
	if eng.closed {
		eng.mu.Unlock()
		return nil, distill.ErrShuttingDown
	}
	eng.mu.Unlock()

	if err := eng.admission.Acquire(); err != nil {
		return nil, err
	}

	snap, err := eng.store.Submit(docID, specs)
	if err != nil {
		eng.admission.Release()
		return nil, err
	}
	if snap.Status.Terminal() {
		// Zero chunks. The record exists for inspection but never runs.
		eng.admission.Release()
		eng.extensions.EmitJobSubmitted(ctx, snap)
		return snap, nil
	}

	eng.scheduler.Wake()
	eng.extensions.EmitJobSubmitted(ctx, snap)
	return snap, nil
}

// Job returns a read-only snapshot of one job.
func (eng *Engine) Job(jobID id.JobID) (*job.Snapshot, error) {
	return eng.store.Get(jobID)
}

// Jobs returns snapshots of all jobs in submission order.
func (eng *Engine) Jobs() []*job.Snapshot {
	return eng.store.List()
}

// Evict removes a terminal job record from the store.
func (eng *Engine) Evict(jobID id.JobID) error {
	return eng.store.Evict(jobID)
}

// Replay resubmits a dead-lettered entry as a fresh job through the
// normal admission path.
func (eng *Engine) Replay(ctx context.Context, entryID id.DLQID) (*job.Snapshot, error) {
	if eng.dlqService == nil {
		return nil, distill.ErrDLQNotFound
	}
	return eng.dlqService.Replay(ctx, entryID)
}

// Start begins processing. It delegates to the Runtime.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.rt.Start(ctx)
}

// Stop rejects new submissions, then shuts the Runtime down. In-flight
// chunks finish within the context's deadline.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	eng.closed = true
	eng.mu.Unlock()
	return eng.rt.Stop(ctx)
}

// Extensions returns the extension registry for event hooks.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// DLQ returns the dead letter service, or nil when the output store
// cannot hold entries.
func (eng *Engine) DLQ() *dlq.Service { return eng.dlqService }

// Admission returns the capacity gate, for inspection.
func (eng *Engine) Admission() *queue.Admission { return eng.admission }
