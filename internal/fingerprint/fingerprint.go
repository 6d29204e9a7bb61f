// Package fingerprint computes content fingerprints for a discovered tree.
//
// A tree fingerprint changes whenever anything that influences the generated
// site changes: a node's path, title, or content fragment, the tree's shape,
// or the caller-supplied settings (template text, variant, renderer). The
// daemon compares fingerprints to skip rebuilds of unchanged sources.
package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inful/mdfp"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/tree"
)

// Node fingerprints one node: its identity as front matter and its content
// fragment (empty when the node has no content) as the body.
func Node(n *tree.Node, indexFile string) (string, error) {
	var body []byte
	if n.HasContent {
		p := filepath.Join(n.Source, indexFile)
		b, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return "", perrors.FileSystem("read", p, err)
		}
		body = b
	}
	return mdfp.CalculateFingerprintFromParts(identity(n), string(body)), nil
}

// Tree fingerprints every node in document order and folds the results,
// together with settings, into one value.
func Tree(t *tree.Tree, indexFile, settings string) (string, error) {
	var b strings.Builder
	for _, n := range t.Flatten().Nodes() {
		fp, err := Node(n, indexFile)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s %s\n", displayPath(n.Path), fp)
	}
	return mdfp.CalculateFingerprintFromParts(settings, b.String()), nil
}

func identity(n *tree.Node) string {
	return fmt.Sprintf("path: %q\ntitle: %q\nlevel: %d\nchildren: %d",
		displayPath(n.Path), n.Title, n.Level, len(n.Children))
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
