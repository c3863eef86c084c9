package distill

import "time"

// Config holds configuration for the Runtime.
type Config struct {
	// Workers is the number of concurrent chunk executors.
	Workers int

	// QueueCapacity caps the number of pending/running jobs. Submissions
	// beyond the cap are rejected synchronously with ErrCapacityExceeded.
	QueueCapacity int

	// MaxChunkRetries bounds per-chunk retry attempts. Attempt n is
	// retried only while n <= MaxChunkRetries, so a chunk makes at most
	// MaxChunkRetries+1 attempts per job cycle.
	MaxChunkRetries int

	// MaxJobRetries bounds job-level requeue cycles after a partial
	// failure. Exhaustion dead-letters the job.
	MaxJobRetries int

	// BaseBackoff is the base delay of the exponential backoff formula:
	// the delay before retry n+1 is min(BaseBackoff * 2^n, MaxBackoff).
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration

	// PollInterval is the scheduler's poll ceiling: the longest it will
	// sleep before re-evaluating job readiness.
	PollInterval time.Duration

	// ProcessTimeout is the per-dispatch deadline on a Processor call.
	// Expiry is reported as a Timeout failure and retried per policy.
	// Zero disables the deadline.
	ProcessTimeout time.Duration

	// DispatchBuffer is the capacity of the scheduler→worker channel.
	DispatchBuffer int

	// ResultBuffer is the capacity of the worker→scheduler channel.
	ResultBuffer int

	// SubmitRate is the maximum sustained submissions per second.
	// Zero disables submission rate limiting.
	SubmitRate float64

	// SubmitBurst is the burst size for the submission token bucket.
	// Defaults to 1 if SubmitRate is set but SubmitBurst is zero.
	SubmitBurst int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         10,
		QueueCapacity:   100,
		MaxChunkRetries: 3,
		MaxJobRetries:   2,
		BaseBackoff:     1 * time.Second,
		MaxBackoff:      1 * time.Minute,
		PollInterval:    10 * time.Second,
		ProcessTimeout:  2 * time.Minute,
		DispatchBuffer:  32,
		ResultBuffer:    32,
		ShutdownTimeout: 30 * time.Second,
	}
}
