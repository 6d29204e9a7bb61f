// Package nav renders the shared navigation index and per-page child
// summaries as HTML fragments.
//
// The navigation index is built once per tree. Its links carry a root
// placeholder because every page sits at a different depth; Resolve swaps the
// placeholder for the consuming page's relative-root prefix.
package nav

import (
	"html"
	"net/url"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/pagetree/internal/tree"
)

// rootPlaceholder marks where the relative-root prefix goes. Titles are
// HTML-escaped before insertion, so no title can produce this text.
const rootPlaceholder = "<!--pagetree:root-->"

// DefaultChildrenHeading labels the child summary.
const DefaultChildrenHeading = "この章の内容"

// Fragment is the navigation index for a whole tree, shared by every page.
type Fragment struct {
	markup string
}

// Build renders the nested navigation list for t, starting at the root.
func Build(t *tree.Tree) Fragment {
	root := t.Root()
	if root == nil {
		return Fragment{}
	}
	var b strings.Builder
	writeList(&b, t, root)
	return Fragment{markup: b.String()}
}

// Resolve returns the markup with links made relative to a page whose
// relative-root prefix is prefix.
func (f Fragment) Resolve(prefix string) string {
	return strings.ReplaceAll(f.markup, rootPlaceholder, html.EscapeString(prefix))
}

// Empty reports whether the fragment has no markup.
func (f Fragment) Empty() bool { return f.markup == "" }

// writeList emits n's own entry followed by one entry per child. Children
// with children of their own become collapsible entries wrapping a nested
// list.
func writeList(b *strings.Builder, t *tree.Tree, n *tree.Node) {
	id := ID(n)
	b.WriteString(`<ul id="` + id + `" class="list-group collapse">` + "\n")
	writeLink(b, n)
	for _, c := range t.Children(n) {
		if len(c.Children) == 0 {
			writeLink(b, c)
			continue
		}
		cid := ID(c)
		b.WriteString(`<li class="list-group-item"><a href="#` + cid + `" data-bs-toggle="collapse" aria-expanded="false" aria-controls="` + cid + `">`)
		b.WriteString(html.EscapeString(c.Title))
		b.WriteString("</a>\n")
		writeList(b, t, c)
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n")
}

func writeLink(b *strings.Builder, n *tree.Node) {
	b.WriteString(`<li class="list-group-item"><a href="` + rootPlaceholder + html.EscapeString(EscapeURL(n.PageURL())) + `">`)
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</a></li>\n")
}

// ID is the element id of the list holding n's entries. Ids derive from
// arena positions, so they are unique whatever the segment keys contain.
func ID(n *tree.Node) string {
	if n.Parent == tree.NoNode {
		return "nav-root"
	}
	return "nav-" + strconv.Itoa(int(n.ID))
}

// Href is n's page URL as seen from a page with the given relative-root
// prefix. The result is URL-escaped but not HTML-escaped.
func Href(prefix string, n *tree.Node) string {
	return prefix + EscapeURL(n.PageURL())
}

// EscapeURL percent-encodes each segment of a slash-separated relative path.
func EscapeURL(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// ChildSummary renders the linked list of n's immediate children for a page
// at n's depth. It returns "" for leaf nodes.
func ChildSummary(t *tree.Tree, n *tree.Node, heading string) string {
	if len(n.Children) == 0 {
		return ""
	}
	if heading == "" {
		heading = DefaultChildrenHeading
	}
	prefix := tree.RootPrefix(n.Level)
	var b strings.Builder
	b.WriteString("<h2>" + html.EscapeString(heading) + "</h2>\n")
	b.WriteString(`<ul class="list-group">` + "\n")
	for _, c := range t.Children(n) {
		b.WriteString(`<li class="list-group-item"><a href="` + html.EscapeString(Href(prefix, c)) + `">`)
		b.WriteString(html.EscapeString(c.Title))
		b.WriteString("</a></li>\n")
	}
	b.WriteString("</ul>\n")
	return b.String()
}
