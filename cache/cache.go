// Package cache keeps recently read node documents in a bounded LRU,
// so repeated lookups of the same node stay off the wire. The client
// evicts an entry whenever a mutation touching that node is
// acknowledged.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xraph/trellis/id"
	"github.com/xraph/trellis/outline"
)

// DefaultSize bounds the cache when the caller passes no size.
const DefaultSize = 1024

// Nodes is an LRU over node documents keyed by node ID. Safe for
// concurrent use.
type Nodes struct {
	lru *lru.Cache[string, *outline.Node]
}

// NewNodes builds a node cache holding up to size entries. Sizes below
// 1 fall back to DefaultSize.
func NewNodes(size int) *Nodes {
	if size < 1 {
		size = DefaultSize
	}

	c, err := lru.New[string, *outline.Node](size)
	if err != nil {
		// lru.New only fails on size < 1, clamped above.
		panic(err)
	}

	return &Nodes{lru: c}
}

// Get returns the cached node, if any. The nil ID never hits.
func (c *Nodes) Get(nid id.NodeID) (*outline.Node, bool) {
	if nid.IsNil() {
		return nil, false
	}

	return c.lru.Get(nid.String())
}

// Put stores a node, displacing the least recently used entry when
// full. Nodes without an ID are ignored.
func (c *Nodes) Put(n *outline.Node) {
	if n == nil || n.ID.IsNil() {
		return
	}

	c.lru.Add(n.ID.String(), n)
}

// Remove drops the entry for nid, if present.
func (c *Nodes) Remove(nid id.NodeID) {
	if nid.IsNil() {
		return
	}

	c.lru.Remove(nid.String())
}

// Purge empties the cache.
func (c *Nodes) Purge() {
	c.lru.Purge()
}

// Len reports the number of cached nodes.
func (c *Nodes) Len() int {
	return c.lru.Len()
}
