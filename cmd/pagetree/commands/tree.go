package commands

import (
	"fmt"
	"io"

	"github.com/ddddddO/gtree"

	"git.home.luguber.info/inful/pagetree/internal/config"
	"git.home.luguber.info/inful/pagetree/internal/tree"
)

// TreeCmd implements the 'tree' command.
type TreeCmd struct {
	Source string `short:"s" help:"Override source.dir"`
	Order  bool   `help:"Also print the previous/next document order"`
}

func (c *TreeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if c.Source != "" {
		cfg.Source.Dir = c.Source
	}
	return RunTree(g.Out, cfg, c.Order)
}

// RunTree discovers the content tree of cfg and prints it.
func RunTree(w io.Writer, cfg *config.Config, order bool) error {
	t, err := tree.Build(cfg.Site.Title, cfg.Source.Dir, tree.Options{
		IndexFile:       cfg.Source.IndexFile,
		AllowCollisions: cfg.Build.AllowCollisions,
	})
	if err != nil {
		return err
	}
	for _, warn := range t.Warnings() {
		_, _ = fmt.Fprintf(w, "warning: %v\n", warn)
	}

	if err := PrintTree(w, t); err != nil {
		return err
	}
	if order {
		_, _ = fmt.Fprintln(w)
		PrintOrder(w, t)
	}
	return nil
}

// PrintTree renders t as an indented hierarchy.
func PrintTree(w io.Writer, t *tree.Tree) error {
	rootNode := t.Root()
	gt := gtree.NewRoot(treeLabel(rootNode))
	addChildren(gt, t, rootNode)
	return gtree.OutputFromRoot(w, gt)
}

func addChildren(parent *gtree.Node, t *tree.Tree, n *tree.Node) {
	for _, child := range t.Children(n) {
		addChildren(parent.Add(treeLabel(child)), t, child)
	}
}

func treeLabel(n *tree.Node) string {
	label := fmt.Sprintf("%s  [%s]", n.Title, displayPath(n.Path))
	if !n.HasContent {
		label += " (placeholder)"
	}
	return label
}

// PrintOrder lists pages in document order with their neighbours.
func PrintOrder(w io.Writer, t *tree.Tree) {
	nodes := t.Flatten().Nodes()
	for i, n := range nodes {
		prev, next := "-", "-"
		if i > 0 {
			prev = displayPath(nodes[i-1].Path)
		}
		if i < len(nodes)-1 {
			next = displayPath(nodes[i+1].Path)
		}
		_, _ = fmt.Fprintf(w, "%3d  %-24s prev=%s next=%s\n", i+1, displayPath(n.Path), prev, next)
	}
}
