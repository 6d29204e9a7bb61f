package page

import (
	"bytes"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/nav"
	"git.home.luguber.info/inful/pagetree/internal/tree"
)

// Variant selects the page feature set.
type Variant string

const (
	// VariantFull renders previous/next links and child summaries.
	VariantFull Variant = "full"
	// VariantMinimal renders neither.
	VariantMinimal Variant = "minimal"
)

// ResolvedTemplateFile is the per-node file name inside the work area.
const ResolvedTemplateFile = "template.html"

// Options configure a Resolver.
type Options struct {
	Variant         Variant
	ChildrenHeading string
	// Escape is applied to every substituted value so the renderer reads it
	// literally (pandoc needs "$" doubled). Nil leaves values unchanged.
	Escape func(string) string
}

// Resolver produces one resolved template per node. The navigation index and
// document sequence are computed once and shared read-only.
type Resolver struct {
	tree     *tree.Tree
	seq      tree.Sequence
	nav      nav.Fragment
	base     *Template
	opts     Options
	workArea string
}

// NewResolver prepares a Resolver for t using base as the shared template.
func NewResolver(t *tree.Tree, base *Template, opts Options) *Resolver {
	if opts.Variant == "" {
		opts.Variant = VariantFull
	}
	if opts.Escape == nil {
		opts.Escape = func(s string) string { return s }
	}
	return &Resolver{
		tree: t,
		seq:  t.Flatten(),
		nav:  nav.Build(t),
		base: base,
		opts: opts,
	}
}

// Sequence is the document order used for previous/next links.
func (r *Resolver) Sequence() tree.Sequence { return r.seq }

// Prepare clears and recreates workArea. It must complete before any node
// is resolved.
func (r *Resolver) Prepare(workArea string) error {
	if err := os.RemoveAll(workArea); err != nil {
		return perrors.FileSystem("remove", workArea, err)
	}
	if err := os.MkdirAll(workArea, 0o750); err != nil {
		return perrors.FileSystem("mkdir", workArea, err)
	}
	r.workArea = workArea
	return nil
}

// ResolveRoot prepares workArea and resolves every node of the tree.
func (r *Resolver) ResolveRoot(workArea string) error {
	if err := r.Prepare(workArea); err != nil {
		return err
	}
	return r.ResolveSubtree(r.tree.Root())
}

// ResolveSubtree resolves n and then each descendant in document order. The
// first failure stops the walk and names the failing node.
func (r *Resolver) ResolveSubtree(n *tree.Node) error {
	return r.tree.Walk(n, r.ResolveNode)
}

// ResolveNode writes n's resolved template to the work area and records its
// location on n.
func (r *Resolver) ResolveNode(n *tree.Node) error {
	if r.workArea == "" {
		return perrors.InternalError("template resolved before work area was prepared", nil).
			WithContext("node", n.Path)
	}
	var buf bytes.Buffer
	if err := r.base.Execute(&buf, r.Context(n)); err != nil {
		return perrors.Wrap(err, perrors.CategoryTemplate, perrors.SeverityFatal, "template execution failed").
			WithContext("node", n.Path).
			WithContext("template", r.base.Name())
	}

	dir := filepath.Join(r.workArea, filepath.FromSlash(strings.TrimPrefix(n.Path, "/")))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return perrors.FileSystem("mkdir", dir, err)
	}
	file := filepath.Join(dir, ResolvedTemplateFile)
	if err := os.WriteFile(file, buf.Bytes(), 0o600); err != nil {
		return perrors.FileSystem("write", file, err)
	}
	n.ResolvedTemplate = file
	slog.Debug("Resolved page template", logfields.Node(n.Path), logfields.Template(file))
	return nil
}

// Context computes the values substituted into n's page.
func (r *Resolver) Context(n *tree.Node) Context {
	esc := r.opts.Escape
	rootTitle := r.tree.Root().Title
	title := rootTitle
	if !n.IsRoot() {
		title = n.Title + " - " + rootTitle
	}
	prefix := tree.RootPrefix(n.Level)

	ctx := Context{
		TitleHeader:      esc(rootTitle),
		Title:            esc(title),
		Nav:              template.HTML(esc(r.nav.Resolve(prefix))), // #nosec G203 - built from escaped titles
		NavID:            nav.ID(r.tree.Root()),
		RootPrefix:       prefix,
		DisabledPrevious: Disabled,
		DisabledNext:     Disabled,
	}
	if r.opts.Variant == VariantMinimal {
		return ctx
	}
	if prev := r.seq.Previous(n.Path); prev != nil {
		ctx.HasPrevious = true
		ctx.PreviousPath = esc(nav.EscapeURL(prev.PageURL()))
		ctx.PreviousHref = prefix + ctx.PreviousPath
		ctx.DisabledPrevious = ""
	}
	if next := r.seq.Next(n.Path); next != nil {
		ctx.HasNext = true
		ctx.NextPath = esc(nav.EscapeURL(next.PageURL()))
		ctx.NextHref = prefix + ctx.NextPath
		ctx.DisabledNext = ""
	}
	ctx.Children = template.HTML(esc(nav.ChildSummary(r.tree, n, r.opts.ChildrenHeading))) // #nosec G203 - built from escaped titles
	return ctx
}
