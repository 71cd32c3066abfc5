package client

import (
	"context"
	"encoding/json"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/id"
	"github.com/xraph/trellis/outline"
	"github.com/xraph/trellis/queue"
)

// ── Writes ──────────────────────────────────────────────────────────
//
// Every write returns immediately with a handle; the mutation reaches
// the server when its batch dispatches. Wait on the handle when the
// caller needs the acknowledgement.

// CreateNode queues the creation of a node.
func (c *Client) CreateNode(p queue.CreateParams) *queue.Handle {
	return c.queue.Enqueue(p)
}

// UpdateNode queues a rename or note change.
func (c *Client) UpdateNode(p queue.UpdateParams) *queue.Handle {
	return c.queue.Enqueue(p)
}

// MoveNode queues a reparent or reorder.
func (c *Client) MoveNode(p queue.MoveParams) *queue.Handle {
	return c.queue.Enqueue(p)
}

// DeleteNode queues the deletion of a node and its subtree.
func (c *Client) DeleteNode(nid id.NodeID) *queue.Handle {
	return c.queue.Enqueue(queue.DeleteParams{NodeID: nid})
}

// CompleteNode queues checking a node off.
func (c *Client) CompleteNode(nid id.NodeID) *queue.Handle {
	return c.queue.Enqueue(queue.CompleteParams{NodeID: nid})
}

// UncompleteNode queues reopening a completed node.
func (c *Client) UncompleteNode(nid id.NodeID) *queue.Handle {
	return c.queue.Enqueue(queue.UncompleteParams{NodeID: nid})
}

// Batch queues several operations under one lock acquisition, so they
// land in the same dispatch batch when capacity allows. Handles come
// back in argument order.
func (c *Client) Batch(params ...queue.Params) []*queue.Handle {
	return c.queue.EnqueueMany(params...)
}

// ── Reads ───────────────────────────────────────────────────────────

// GetNode fetches one node, serving repeat lookups from the cache
// until a write touches that node.
func (c *Client) GetNode(ctx context.Context, nid id.NodeID) (*outline.Node, error) {
	if nid.IsNil() {
		return nil, trellis.ErrMissingNodeID
	}
	if n, ok := c.nodes.Get(nid); ok {
		return n, nil
	}
	if c.reader == nil {
		return nil, trellis.ErrNoTransport
	}

	var n outline.Node
	if err := c.reader.Get(ctx, "/nodes/"+nid.String(), &n); err != nil {
		return nil, err
	}

	c.nodes.Put(&n)

	return &n, nil
}

// ListNodes fetches every node of the account as a flat list.
func (c *Client) ListNodes(ctx context.Context) ([]*outline.Node, error) {
	if c.reader == nil {
		return nil, trellis.ErrNoTransport
	}

	var raw json.RawMessage
	if err := c.reader.Get(ctx, "/nodes", &raw); err != nil {
		return nil, err
	}

	return outline.DecodeNodes(raw)
}

// Outline fetches every node and assembles the forest, siblings
// ordered by priority.
func (c *Client) Outline(ctx context.Context) ([]*outline.Item, error) {
	nodes, err := c.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	return outline.BuildTree(nodes), nil
}
