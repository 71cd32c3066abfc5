// Package outline holds the read-side model of a Trellis document:
// nodes, their tree shape, and text renderings of the result.
package outline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/trellis/id"
)

// Node is one entry in an outline, as the service returns it. A nil
// ParentID (the zero ID) marks a root node.
type Node struct {
	ID          id.NodeID  `json:"id"`
	Name        string     `json:"name"`
	Note        string     `json:"note,omitempty"`
	ParentID    id.NodeID  `json:"parent_id"`
	Priority    int        `json:"priority"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Completed reports whether the node has been checked off.
func (n *Node) Completed() bool {
	return n.CompletedAt != nil
}

// DecodeNode parses a single node document.
func DecodeNode(raw json.RawMessage) (*Node, error) {
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("outline: decode node: %w", err)
	}

	return &n, nil
}

// DecodeNodes parses a list response. Both a bare array and the
// paginated {"nodes": [...]} envelope are accepted.
func DecodeNodes(raw json.RawMessage) ([]*Node, error) {
	var list []*Node
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Nodes []*Node `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("outline: decode node list: %w", err)
	}

	return envelope.Nodes, nil
}
