package distill

import (
	"context"
	"log/slog"
)

// Option configures a Runtime.
type Option func(*Runtime) error

// OutputStore is the minimal storage interface held by the Runtime.
// It covers lifecycle operations only; the full KV contract lives in the
// storage package, which would otherwise create an import cycle.
type OutputStore interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// runner is an internal interface for component lifecycle (worker pool,
// scheduler loop).
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Runtime is the top-level coordinator for document extraction processing.
//
// Create one with New() and functional options. The Runtime holds references
// to subsystem components via internal interfaces to avoid import cycles.
// Use engine.Build to wire the job store, scheduler, worker pool, and
// dead-letter service together.
type Runtime struct {
	config     Config
	logger     *slog.Logger
	outputs    OutputStore
	extensions extensionEmitter
	pool       runner
	scheduler  runner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Runtime with the given options.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Outputs returns the runtime's output store, if configured.
func (rt *Runtime) Outputs() OutputStore { return rt.outputs }

// Config returns a copy of the runtime's configuration.
func (rt *Runtime) Config() Config { return rt.config }

// SetPool sets the worker pool (called by the engine package).
func (rt *Runtime) SetPool(p runner) { rt.pool = p }

// SetScheduler sets the scheduler loop (called by the engine package).
func (rt *Runtime) SetScheduler(s runner) { rt.scheduler = s }

// SetExtensions sets the extension emitter (called by the engine package).
func (rt *Runtime) SetExtensions(e extensionEmitter) { rt.extensions = e }

// Start begins chunk processing.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.pool == nil || rt.scheduler == nil {
		return ErrNoProcessor
	}
	if err := rt.pool.Start(ctx); err != nil {
		return err
	}
	if err := rt.scheduler.Start(ctx); err != nil {
		return err
	}
	rt.started = true
	return nil
}

// Stop gracefully shuts down the runtime. Workers finish their in-flight
// chunks first so the scheduler can account for every outstanding result
// before its loop exits.
func (rt *Runtime) Stop(ctx context.Context) error {
	if rt.started {
		if rt.pool != nil {
			if err := rt.pool.Stop(ctx); err != nil {
				rt.logger.Error("pool stop error", "error", err)
			}
		}
		if rt.scheduler != nil {
			if err := rt.scheduler.Stop(ctx); err != nil {
				rt.logger.Error("scheduler stop error", "error", err)
			}
		}
	}
	if rt.extensions != nil {
		rt.extensions.EmitShutdown(ctx)
	}
	if rt.outputs != nil {
		return rt.outputs.Close(ctx)
	}
	return nil
}

// WithWorkers sets the number of concurrent chunk executors.
func WithWorkers(n int) Option {
	return func(rt *Runtime) error {
		rt.config.Workers = n
		return nil
	}
}

// WithQueueCapacity caps the number of pending/running jobs.
func WithQueueCapacity(n int) Option {
	return func(rt *Runtime) error {
		rt.config.QueueCapacity = n
		return nil
	}
}

// WithRetryLimits sets the per-chunk and job-level retry budgets.
func WithRetryLimits(chunkRetries, jobRetries int) Option {
	return func(rt *Runtime) error {
		rt.config.MaxChunkRetries = chunkRetries
		rt.config.MaxJobRetries = jobRetries
		return nil
	}
}

// WithLogger sets the structured logger for the runtime.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) error {
		rt.logger = l
		return nil
	}
}

// WithOutputStore sets the extraction-output storage backend.
// The store must implement OutputStore at minimum; typically it is a
// storage.KV.
func WithOutputStore(s OutputStore) Option {
	return func(rt *Runtime) error {
		rt.outputs = s
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(rt *Runtime) error {
		rt.config = cfg
		return nil
	}
}
