// Package tree models the content hierarchy: one Node per source directory,
// stored in an arena and addressed by stable NodeIDs.
package tree

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside its Tree's arena.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Node is one entry of the content hierarchy and corresponds to exactly one
// output page.
type Node struct {
	ID NodeID
	// Title is the display string: explicit for the root, derived from the
	// raw directory name otherwise.
	Title string
	// Path is "" for the root and parent.Path + "/" + segment key otherwise.
	Path string
	// Source is the directory this node was built from.
	Source string
	// RawName is the unmodified directory name ("" for the root).
	RawName    string
	Level      int
	HasContent bool
	Parent     NodeID
	Children   []NodeID

	// ResolvedTemplate is the per-node template location, set during
	// template resolution.
	ResolvedTemplate string
}

// IsRoot reports whether n is the tree's root.
func (n *Node) IsRoot() bool { return n.Parent == NoNode }

// Tree is an arena of nodes. Index 0 is always the root.
type Tree struct {
	nodes    []*Node
	byPath   map[string]NodeID
	warnings []error
}

func newTree() *Tree {
	return &Tree{byPath: make(map[string]NodeID)}
}

func (t *Tree) add(n *Node) NodeID {
	n.ID = NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	if _, exists := t.byPath[n.Path]; !exists {
		t.byPath[n.Path] = n.ID
	}
	if n.Parent != NoNode {
		p := t.nodes[n.Parent]
		p.Children = append(p.Children, n.ID)
	}
	return n.ID
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0]
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("tree: node id %d out of range", id))
	}
	return t.nodes[id]
}

// Len is the total node count.
func (t *Tree) Len() int { return len(t.nodes) }

// Lookup finds a node by path. Paths are normalised with CleanPath first.
func (t *Tree) Lookup(path string) (*Node, bool) {
	id, ok := t.byPath[CleanPath(path)]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// Children returns n's children in sibling order.
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, len(n.Children))
	for i, id := range n.Children {
		out[i] = t.nodes[id]
	}
	return out
}

// Warnings returns non-fatal problems found while building (for example
// tolerated segment-key collisions).
func (t *Tree) Warnings() []error { return t.warnings }

// Walk visits n and its descendants in document order. Returning an error
// from fn stops the walk.
func (t *Tree) Walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, id := range n.Children {
		if err := t.Walk(t.nodes[id], fn); err != nil {
			return err
		}
	}
	return nil
}

// CleanPath normalises an externally supplied node path: surrounding slashes
// are stripped and a non-empty result is re-rooted with a single "/".
func CleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// RootPrefix is the relative prefix leading from a page at the given level
// back to the site root: "" at level 1, "../" at level 2, and so on.
func RootPrefix(level int) string {
	if level <= 1 {
		return ""
	}
	return strings.Repeat("../", level-1)
}

// PageURL is n's page location relative to the site root, without a leading
// slash.
func (n *Node) PageURL() string {
	if n.Path == "" {
		return "index.html"
	}
	return strings.TrimPrefix(n.Path, "/") + "/index.html"
}
