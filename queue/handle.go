package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xraph/trellis"
)

// Handle is the write-once completion slot for an enqueued operation.
// It settles exactly once: with the server's response document, with the
// error that failed the operation, or with trellis.ErrQueueCleared when
// the backlog is discarded before dispatch.
//
// A Handle is safe for concurrent use by any number of waiters.
type Handle struct {
	done chan struct{}

	once   sync.Once
	result json.RawMessage
	err    error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// settle records the outcome. Later calls are no-ops, so a clear racing
// a dispatch cannot double-settle.
func (h *Handle) settle(result json.RawMessage, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// Done returns a channel that is closed once the operation has settled.
// It never closes twice and is safe to select on from multiple goroutines.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the operation settles or ctx is done. Cancelling
// ctx abandons the wait, not the operation: the mutation still reaches
// the server and the handle still settles for other waiters.
func (h *Handle) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the settled outcome without blocking. Before the
// operation settles it returns trellis.ErrNotSettled.
func (h *Handle) Result() (json.RawMessage, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return nil, trellis.ErrNotSettled
	}
}
