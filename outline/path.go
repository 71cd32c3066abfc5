package outline

import (
	"strings"

	"github.com/xraph/trellis/id"
)

// PathSeparator joins the segments of a node path.
const PathSeparator = " > "

// Path returns the names from the outermost known ancestor down to
// node, joined with [PathSeparator]. nodes indexes every node the
// caller knows about; a parent missing from the index ends the walk,
// as does a cycle in the parent chain.
func Path(node *Node, nodes map[id.NodeID]*Node) string {
	if node == nil {
		return ""
	}

	segments := []string{node.Name}
	seen := map[id.NodeID]bool{node.ID: true}

	for cur := node; !cur.ParentID.IsNil(); {
		parent, ok := nodes[cur.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		segments = append(segments, parent.Name)
		cur = parent
	}

	// Walked child→root; the path reads root→child.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return strings.Join(segments, PathSeparator)
}

// Index builds the ID lookup [Path] consumes.
func Index(nodes []*Node) map[id.NodeID]*Node {
	m := make(map[id.NodeID]*Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}

	return m
}
