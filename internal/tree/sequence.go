package tree

import "fmt"

// Sequence is the read-only document-order flattening of a Tree: each node
// precedes its children and siblings keep their order.
type Sequence struct {
	nodes []*Node
	index map[string]int
}

// Flatten walks the tree in pre-order.
func (t *Tree) Flatten() Sequence {
	s := Sequence{
		nodes: make([]*Node, 0, len(t.nodes)),
		index: make(map[string]int, len(t.nodes)),
	}
	if root := t.Root(); root != nil {
		_ = t.Walk(root, func(n *Node) error {
			if _, dup := s.index[n.Path]; !dup {
				s.index[n.Path] = len(s.nodes)
			}
			s.nodes = append(s.nodes, n)
			return nil
		})
	}
	return s
}

// Len is the number of nodes in the sequence.
func (s Sequence) Len() int { return len(s.nodes) }

// Nodes returns the nodes in document order. The slice must not be modified.
func (s Sequence) Nodes() []*Node { return s.nodes }

// Position returns the index of the node with the given path.
func (s Sequence) Position(path string) (int, bool) {
	i, ok := s.index[CleanPath(path)]
	return i, ok
}

// Previous returns the node immediately before path, or nil at the start.
// It panics when path is not part of the sequence.
func (s Sequence) Previous(path string) *Node {
	i := s.mustPosition(path)
	if i == 0 {
		return nil
	}
	return s.nodes[i-1]
}

// Next returns the node immediately after path, or nil at the end.
// It panics when path is not part of the sequence.
func (s Sequence) Next(path string) *Node {
	i := s.mustPosition(path)
	if i == len(s.nodes)-1 {
		return nil
	}
	return s.nodes[i+1]
}

func (s Sequence) mustPosition(path string) int {
	i, ok := s.Position(path)
	if !ok {
		panic(fmt.Sprintf("tree: path %q not in sequence", path))
	}
	return i
}
