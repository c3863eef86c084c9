package middleware

import (
	"context"

	"github.com/xraph/distill/job"
)

// Handler is the terminal function that runs the processor for one
// work item and returns the output reference.
type Handler func(ctx context.Context) (string, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the work item being executed, and
// the next handler to call. Middleware MUST call next to continue the
// chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, item job.WorkItem, next Handler) (string, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, item job.WorkItem, next Handler) (string, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (string, error) {
				return mw(ctx, item, prev)
			}
		}
		return h(ctx)
	}
}
