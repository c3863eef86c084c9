// Package queue gates job admission into the runtime.
//
// Admission owns the queue capacity: a slot is taken when a job is
// accepted and returned when the job reaches a terminal status. An
// optional token-bucket limiter additionally throttles the sustained
// submission rate independently of capacity.
package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/distill"
)

// Config defines admission behaviour.
type Config struct {
	// Capacity limits how many jobs may be in flight (non-terminal) at
	// once. Zero or negative means unlimited.
	Capacity int

	// SubmitRate is the maximum sustained submissions per second.
	// Zero disables rate limiting.
	SubmitRate float64

	// SubmitBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if SubmitRate is set but SubmitBurst is zero.
	SubmitBurst int
}

// Admission is the capacity gate in front of the job store. It is safe
// for concurrent use.
type Admission struct {
	mu       sync.Mutex
	capacity int
	active   int
	limiter  *rate.Limiter
}

// NewAdmission creates an Admission gate with the given configuration.
func NewAdmission(cfg Config) *Admission {
	a := &Admission{capacity: cfg.Capacity}
	if cfg.SubmitRate > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	return a
}

// Acquire claims a slot for a new job. It returns
// distill.ErrSubmitThrottled when the submission rate is exceeded and
// distill.ErrCapacityExceeded when the queue is full. The caller MUST
// call Release exactly once when the job leaves the runtime.
func (a *Admission) Acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Capacity first: a rejected submission must not spend a rate token
	// the caller needs for the retry.
	if a.capacity > 0 && a.active >= a.capacity {
		return distill.ErrCapacityExceeded
	}
	if a.limiter != nil && !a.limiter.Allow() {
		return distill.ErrSubmitThrottled
	}
	a.active++
	return nil
}

// Release returns a slot claimed by Acquire.
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active > 0 {
		a.active--
	}
}

// Active returns the number of slots currently claimed.
func (a *Admission) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SetCapacity updates the capacity limit. Jobs already admitted keep
// their slots even if the new limit is lower.
func (a *Admission) SetCapacity(capacity int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capacity = capacity
}
