package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/trellis/queue"
)

// Timeout returns middleware that bounds the full dispatch of one
// operation, transport retries included. A limit of zero disables the
// bound. This sits above the transport's per-attempt timeout: the
// attempt timeout caps a single request, this caps the whole operation.
func Timeout(logger *slog.Logger, limit time.Duration) queue.Middleware {
	return func(ctx context.Context, op *queue.Operation, next queue.Handler) error {
		if limit > 0 {
			logger.Debug("operation deadline set",
				slog.String("op_id", op.ID.String()),
				slog.Duration("timeout", limit),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		return next(ctx)
	}
}
