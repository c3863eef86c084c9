package distill

import "errors"

var (
	// Admission errors.
	ErrCapacityExceeded = errors.New("distill: queue capacity exceeded")
	ErrSubmitThrottled  = errors.New("distill: submission rate limit exceeded")

	// Not found errors.
	ErrJobNotFound   = errors.New("distill: job not found")
	ErrChunkNotFound = errors.New("distill: chunk not found")
	ErrDLQNotFound   = errors.New("distill: dlq entry not found")
	ErrKeyNotFound   = errors.New("distill: key not found")

	// State errors.
	ErrStaleResult     = errors.New("distill: stale result for superseded attempt")
	ErrJobNotTerminal  = errors.New("distill: job not in a terminal state")
	ErrNoChunks        = errors.New("distill: no chunks produced")
	ErrAlreadyReplayed = errors.New("distill: dlq entry already replayed")

	// Lifecycle errors.
	ErrStoreClosed  = errors.New("distill: store closed")
	ErrShuttingDown = errors.New("distill: runtime shutting down")
	ErrNoProcessor  = errors.New("distill: no processor configured")
)
