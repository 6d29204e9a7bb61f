package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path
	}
	return out
}

func TestFlatten_Scenario(t *testing.T) {
	tr := scenarioTree(t)
	seq := tr.Flatten()

	require.Equal(t, tr.Len(), seq.Len())
	assert.Equal(t, []string{"", "/0010", "/0020", "/0020/0010"}, paths(seq.Nodes()))

	assert.Equal(t, "/0020", seq.Previous("/0020/0010").Path)
	assert.Equal(t, "/0020", seq.Next("/0010").Path)
	assert.Nil(t, seq.Previous(""))
	assert.Nil(t, seq.Next("/0020/0010"))
	// Externally supplied paths may omit the leading slash.
	assert.Equal(t, "/0010", seq.Next("").Path)
	assert.Equal(t, "/0010", seq.Previous("0020").Path)
}

func TestFlatten_NeighboursMatchPositions(t *testing.T) {
	root := t.TempDir()
	layout(t, root,
		"0010_a/0010_a1/0010_a1x",
		"0010_a/0020_a2",
		"0020_b",
		"0030_c/0010_c1/index.md",
	)
	tr, err := Build("T", root, Options{})
	require.NoError(t, err)
	seq := tr.Flatten()
	nodes := seq.Nodes()
	require.Equal(t, tr.Len(), len(nodes))

	for i, n := range nodes {
		pos, ok := seq.Position(n.Path)
		require.True(t, ok)
		assert.Equal(t, i, pos)
		if i == 0 {
			assert.Nil(t, seq.Previous(n.Path))
		} else {
			assert.Same(t, nodes[i-1], seq.Previous(n.Path))
		}
		if i == len(nodes)-1 {
			assert.Nil(t, seq.Next(n.Path))
		} else {
			assert.Same(t, nodes[i+1], seq.Next(n.Path))
		}
	}
}

func titles(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Title
	}
	return out
}

func TestFlatten_RenameChangesOrderNotPaths(t *testing.T) {
	root := t.TempDir()
	layout(t, root, "0010_a/index.md", "0020_b/index.md")
	before, err := Build("T", root, Options{})
	require.NoError(t, err)

	// Swap the ordering prefixes of the two siblings.
	require.NoError(t, os.Rename(filepath.Join(root, "0010_a"), filepath.Join(root, "tmp_a")))
	require.NoError(t, os.Rename(filepath.Join(root, "0020_b"), filepath.Join(root, "0010_b")))
	require.NoError(t, os.Rename(filepath.Join(root, "tmp_a"), filepath.Join(root, "0020_a")))
	after, err := Build("T", root, Options{})
	require.NoError(t, err)

	b := before.Flatten()
	a := after.Flatten()
	assert.Equal(t, paths(b.Nodes()), paths(a.Nodes()))
	assert.Equal(t, []string{"T", "a", "b"}, titles(b.Nodes()))
	assert.Equal(t, []string{"T", "b", "a"}, titles(a.Nodes()))
	assert.Equal(t, "a", b.Next("").Title)
	assert.Equal(t, "b", a.Next("").Title)
}

func TestSequence_UnknownPathPanics(t *testing.T) {
	seq := scenarioTree(t).Flatten()
	assert.Panics(t, func() { seq.Next("/9999") })
}
