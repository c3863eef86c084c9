package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/distill/job"
)

// Logging returns middleware that logs chunk start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, item job.WorkItem, next Handler) (string, error) {
		logger.Debug("chunk started",
			slog.String("job_id", item.JobID.String()),
			slog.String("chunk_id", item.ChunkID.String()),
			slog.Int("attempt", item.Attempt),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("chunk failed",
				slog.String("job_id", item.JobID.String()),
				slog.String("chunk_id", item.ChunkID.String()),
				slog.Int("attempt", item.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("chunk completed",
				slog.String("job_id", item.JobID.String()),
				slog.String("chunk_id", item.ChunkID.String()),
				slog.Int("attempt", item.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
