// Package middleware provides composable middleware for operation
// dispatch.
//
// A middleware wraps the terminal handler that sends an operation's
// request to the Trellis API. Middleware are composed with [queue.Chain]
// and applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// recover → logging → handler
//	q := queue.New(cfg,
//	    queue.WithMiddleware(middleware.Recover(logger), middleware.Logging(logger)),
//	)
//
// # Built-in Middleware
//
//   - [Logging] — logs operation kind, id, queue latency, and outcome
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — bounds the full dispatch of one operation, retries included
//   - [Tracing] — wraps dispatch in an OpenTelemetry span
//   - [Metrics] — records per-operation duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() queue.Middleware {
//	    return func(ctx context.Context, op *queue.Operation, next queue.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, request deduplication).
package middleware
