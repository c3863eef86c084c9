package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/distill/job"
	"github.com/xraph/distill/processor"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to processor errors of kind "other" and
// logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, item job.WorkItem, next Handler) (out string, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("processor panicked",
					slog.String("job_id", item.JobID.String()),
					slog.String("chunk_id", item.ChunkID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				out = ""
				retErr = processor.Errorf(processor.KindOther,
					"panic processing chunk %s: %v", item.ChunkID, r)
			}
		}()
		return next(ctx)
	}
}
