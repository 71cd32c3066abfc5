package outline

import (
	"cmp"
	"slices"

	"github.com/xraph/trellis/id"
)

// Item is a node joined with its resolved children.
type Item struct {
	*Node
	Children []*Item
}

// BuildTree links a flat node list into a forest. Nodes whose parent
// is absent from the list become roots, so a partial fetch still
// renders. Siblings are ordered by Priority, then name, then ID for a
// stable tie-break.
func BuildTree(nodes []*Node) []*Item {
	items := make(map[id.NodeID]*Item, len(nodes))
	for _, n := range nodes {
		items[n.ID] = &Item{Node: n}
	}

	var roots []*Item
	for _, n := range nodes {
		it := items[n.ID]
		parent, ok := items[n.ParentID]
		if !ok || n.ParentID.IsNil() || parent == it {
			roots = append(roots, it)
			continue
		}
		parent.Children = append(parent.Children, it)
	}

	sortItems(roots)
	for _, it := range items {
		sortItems(it.Children)
	}

	return roots
}

func sortItems(items []*Item) {
	slices.SortFunc(items, func(a, b *Item) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}

// Walk visits every item of the forest depth-first, parents before
// children, calling fn with the item and its depth. Returning false
// from fn skips the item's children.
func Walk(roots []*Item, fn func(it *Item, depth int) bool) {
	var rec func(items []*Item, depth int)
	rec = func(items []*Item, depth int) {
		for _, it := range items {
			if fn(it, depth) {
				rec(it.Children, depth+1)
			}
		}
	}
	rec(roots, 0)
}
