// Package queue implements the debounced, batching write queue that
// stands between the application and the Trellis API.
//
// Mutations never hit the network directly. [Queue.Enqueue] appends an
// [Operation] to an in-memory backlog and returns a [Handle] immediately;
// the queue coalesces bursts behind a debounce timer, pulls FIFO batches
// of up to [Config.MaxBatchSize] operations, and runs at most
// [Config.MaxConcurrency] batches at a time. Each operation spends one
// token from a [ratelimit.Bucket] before its request goes out, so the
// service write limit holds no matter how the batches land.
//
// # Lifecycle of an Operation
//
//	h := q.Enqueue(queue.CreateParams{Name: "inbox"})
//	...
//	result, err := h.Wait(ctx)
//
// The first enqueue after idle arms the debounce timer. When it fires,
// batches dispatch until the backlog drains or the concurrency cap is
// reached; a settling batch immediately pulls the next one, so the
// debounce delay is paid once per burst, not once per batch.
//
// Failures are isolated: one rejected operation settles its own handle
// with the error and never disturbs its batch siblings.
//
// # Middleware
//
// Cross-cutting behavior wraps execution through [Middleware], composed
// with [Chain] and applied right-to-left: the first middleware in the
// slice is the outermost wrapper.
//
//	q := queue.New(cfg,
//	    queue.WithExecutor(tr),
//	    queue.WithMiddleware(middleware.Recover(logger), middleware.Logging(logger)),
//	)
//
// # Shutdown
//
// [Queue.Drain] blocks until the backlog is empty and no batch is in
// flight; [Queue.Clear] discards the backlog instead, settling every
// pending handle with trellis.ErrQueueCleared.
package queue
