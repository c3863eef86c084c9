package middleware

import (
	"context"
	"time"

	"github.com/xraph/distill/job"
)

// Timeout returns middleware that enforces a per-chunk execution
// deadline. When the deadline is exceeded the context is cancelled and
// the processor should return context.DeadlineExceeded, which is
// classified as a timeout error kind. A zero duration disables the
// deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ job.WorkItem, next Handler) (string, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
