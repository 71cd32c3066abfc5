package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/trellis/queue"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace,
// so one broken executor cannot take down a whole batch's goroutines.
func Recover(logger *slog.Logger) queue.Middleware {
	return func(ctx context.Context, op *queue.Operation, next queue.Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("operation handler panicked",
					slog.String("op_id", op.ID.String()),
					slog.String("kind", string(op.Kind)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in %s operation: %v", op.Kind, r)
			}
		}()
		return next(ctx)
	}
}
