package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/trellis/queue"
)

// Logging returns middleware that logs operation dispatch and outcome.
// The queued duration is how long the operation sat in the backlog
// before its request went out.
func Logging(logger *slog.Logger) queue.Middleware {
	return func(ctx context.Context, op *queue.Operation, next queue.Handler) error {
		logger.Info("operation dispatched",
			slog.String("op_id", op.ID.String()),
			slog.String("kind", string(op.Kind)),
			slog.Duration("queued", time.Since(op.EnqueuedAt)),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("operation failed",
				slog.String("op_id", op.ID.String()),
				slog.String("kind", string(op.Kind)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("operation acknowledged",
				slog.String("op_id", op.ID.String()),
				slog.String("kind", string(op.Kind)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
