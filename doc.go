// Package trellis provides a Go client for the Trellis outline service.
// It offers typed node mutations, a debounced batching write queue that
// respects the service rate limit, and a retrying HTTP transport with
// OAuth2 authentication.
//
// Trellis is designed as a library, not a daemon. Import it, configure a
// token, and enqueue mutations as ordinary Go calls; each call returns a
// handle that settles when the server has acknowledged the change.
//
// # Quick Start
//
//	c, err := client.New(trellis.DefaultConfig(),
//	    client.WithTokenSource(auth.Static(token)),
//	)
//	h := c.CreateNode(queue.CreateParams{Name: "groceries"})
//	raw, err := h.Wait(ctx)
//
// # Architecture
//
// Writes never hit the network directly. They land in a queue that
// debounces bursts, groups operations into batches, caps the number of
// batches in flight, and paces individual requests through a token
// bucket sized to the service limit. Reads bypass the queue and go
// through an LRU cache that write acknowledgements invalidate.
//
// All operation IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package trellis
