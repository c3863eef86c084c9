// Package retry decides whether failed work runs again and how long to
// wait before it does.
//
// Two budgets are tracked independently. Each chunk carries its own
// attempt counter while a job is in flight; once every chunk has either
// succeeded or exhausted its budget, the job itself may be requeued a
// limited number of times, with every still-failed chunk granted a
// fresh budget. Retryability is also gated by error kind so that
// deterministic failures are not replayed.
package retry

import (
	"time"

	"github.com/xraph/distill/backoff"
	"github.com/xraph/distill/processor"
)

// Policy holds the retry budgets and the backoff strategy shared by
// chunk-level and job-level decisions.
type Policy struct {
	// MaxChunkRetries bounds retries per chunk within one job attempt.
	// A chunk runs at most MaxChunkRetries+1 times.
	MaxChunkRetries int

	// MaxJobRetries bounds how many times a partially failed job is
	// requeued before it is dead-lettered.
	MaxJobRetries int

	// Backoff computes the delay before a retry. Nil falls back to
	// backoff.DefaultStrategy.
	Backoff backoff.Strategy

	// Retryable overrides the default per-kind retryability. Kinds
	// absent from the map use DefaultRetryable.
	Retryable map[processor.ErrorKind]bool
}

// DefaultRetryable is the built-in retryability table. Validation
// failures are deterministic and never retried; everything else is
// presumed transient.
var DefaultRetryable = map[processor.ErrorKind]bool{
	processor.KindSchemaValidation:    false,
	processor.KindUpstreamUnavailable: true,
	processor.KindTimeout:             true,
	processor.KindOther:               true,
}

// DefaultPolicy returns a policy with three chunk retries, two job
// retries and exponential backoff capped at one minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxChunkRetries: 3,
		MaxJobRetries:   2,
		Backoff:         backoff.DefaultStrategy(),
	}
}

func (p Policy) strategy() backoff.Strategy {
	if p.Backoff != nil {
		return p.Backoff
	}
	return backoff.DefaultStrategy()
}

// RetryableKind reports whether errors of the given kind are eligible
// for retry under this policy.
func (p Policy) RetryableKind(kind processor.ErrorKind) bool {
	if v, ok := p.Retryable[kind]; ok {
		return v
	}
	if v, ok := DefaultRetryable[kind]; ok {
		return v
	}
	return true
}

// Chunk decides the fate of a chunk whose attempt number `attempt`
// (1-based) just failed with an error of the given kind. It returns
// whether the chunk should run again and, if so, after what delay.
func (p Policy) Chunk(attempt int, kind processor.ErrorKind) (bool, time.Duration) {
	if !p.RetryableKind(kind) {
		return false, 0
	}
	if attempt > p.MaxChunkRetries {
		return false, 0
	}
	return true, p.strategy().Delay(attempt)
}

// Job decides whether a partially failed job with the given number of
// completed attempts should be requeued, and after what delay. A job
// that has already been requeued MaxJobRetries times is dead-lettered
// instead.
func (p Policy) Job(attempts int) (bool, time.Duration) {
	if attempts >= p.MaxJobRetries {
		return false, 0
	}
	return true, p.strategy().Delay(attempts + 1)
}
