package tree

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

const (
	// OrderPrefixLen is the number of leading runes of a directory name used
	// only for ordering; they are dropped from the derived title.
	OrderPrefixLen = 5
	// SegmentKeyLen is the number of leading runes forming a path segment.
	SegmentKeyLen = 4
	// DefaultIndexFile marks a directory as having content.
	DefaultIndexFile = "index.md"
)

// Options tune tree discovery.
type Options struct {
	IndexFile string
	// AllowCollisions downgrades sibling segment-key collisions from a fatal
	// NamingConventionViolation to a recorded warning.
	AllowCollisions bool
}

// Builder scans a content root into a Tree.
type Builder struct {
	opts Options
	tree *Tree
}

// NewBuilder returns a Builder with defaults applied to opts.
func NewBuilder(opts Options) *Builder {
	if opts.IndexFile == "" {
		opts.IndexFile = DefaultIndexFile
	}
	return &Builder{opts: opts}
}

// Build scans sourceDir into a new Tree whose root carries rootTitle.
func Build(rootTitle, sourceDir string, opts Options) (*Tree, error) {
	return NewBuilder(opts).BuildRoot(rootTitle, sourceDir)
}

// BuildRoot resets the builder, creates the root node with rootTitle verbatim,
// and builds every child subtree beneath it.
func (b *Builder) BuildRoot(rootTitle, sourceDir string) (*Tree, error) {
	b.tree = newTree()
	if _, err := b.build(NoNode, rootTitle, sourceDir, "", 1); err != nil {
		return nil, err
	}
	slog.Debug("Content tree built", logfields.Source(sourceDir), logfields.Count(b.tree.Len()))
	return b.tree, nil
}

// BuildSubtree adds the node for sourceDir under parent, deriving its title
// from the directory name, and recurses into its subdirectories.
func (b *Builder) BuildSubtree(parent NodeID, sourceDir, path string, level int) (NodeID, error) {
	if b.tree == nil {
		return NoNode, perrors.InternalError("subtree built before root", nil)
	}
	return b.build(parent, DeriveTitle(filepath.Base(sourceDir)), sourceDir, CleanPath(path), level)
}

func (b *Builder) build(parent NodeID, title, sourceDir, path string, level int) (NodeID, error) {
	if err := requireDir(sourceDir); err != nil {
		return NoNode, err
	}
	n := &Node{
		Title:      title,
		Path:       path,
		Source:     sourceDir,
		Level:      level,
		HasContent: b.hasContent(sourceDir),
		Parent:     parent,
	}
	if parent != NoNode {
		n.RawName = filepath.Base(sourceDir)
	}
	id := b.tree.add(n)
	if err := b.buildChildren(id); err != nil {
		return NoNode, err
	}
	return id, nil
}

func (b *Builder) buildChildren(id NodeID) error {
	n := b.tree.Node(id)
	names, err := subdirectories(n.Source)
	if err != nil {
		return err
	}
	if err := b.checkKeys(n, names); err != nil {
		return err
	}
	for _, name := range names {
		childPath := n.Path + "/" + SegmentKey(name)
		if _, err := b.BuildSubtree(id, filepath.Join(n.Source, name), childPath, n.Level+1); err != nil {
			return err
		}
	}
	return nil
}

// checkKeys reports siblings deriving the same segment key.
func (b *Builder) checkKeys(parent *Node, names []string) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		key := SegmentKey(name)
		first, dup := seen[key]
		if !dup {
			seen[key] = name
			continue
		}
		violation := perrors.NamingConventionViolation(parent.Path, key, first, name)
		if !b.opts.AllowCollisions {
			return violation
		}
		violation.WithSeverity(perrors.SeverityWarning)
		b.tree.warnings = append(b.tree.warnings, violation)
		slog.Warn("Segment key collision; later sibling overwrites output",
			logfields.Node(parent.Path), slog.String("key", key),
			slog.String("first", first), slog.String("second", name))
	}
	return nil
}

func (b *Builder) hasContent(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, b.opts.IndexFile))
	return err == nil && info.Mode().IsRegular()
}

// subdirectories lists the immediate, non-hidden subdirectories of dir in
// ascending byte order of their raw names. Symlinks to directories count.
func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, perrors.FileSystem("readdir", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return perrors.MissingSource(dir).WithContext("cause", err.Error())
	}
	if !info.IsDir() {
		return perrors.MissingSource(dir).WithContext("cause", fmt.Sprintf("%s is not a directory", dir))
	}
	return nil
}

// DeriveTitle drops the ordering prefix from a raw directory name. Names not
// longer than the prefix yield "".
func DeriveTitle(raw string) string {
	r := []rune(norm.NFC.String(raw))
	if len(r) <= OrderPrefixLen {
		return ""
	}
	return string(r[OrderPrefixLen:])
}

// SegmentKey is the leading SegmentKeyLen runes of a raw directory name,
// counted after NFC normalization like DeriveTitle.
func SegmentKey(raw string) string {
	r := []rune(norm.NFC.String(raw))
	if len(r) > SegmentKeyLen {
		r = r[:SegmentKeyLen]
	}
	return string(r)
}
