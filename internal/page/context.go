// Package page resolves the shared base template into one template per node.
package page

import (
	"html"
	"html/template"
)

// Disabled is the marker set in place of a missing previous or next link.
const Disabled = "disabled"

// Context holds the values substituted into the base template for one page.
type Context struct {
	// TitleHeader is the root title, shown on every page.
	TitleHeader string
	// Title is the composed page title: the root title on the root page,
	// "<node title> - <root title>" elsewhere.
	Title string
	// Nav is the shared navigation index resolved for this page's depth.
	Nav   template.HTML
	NavID string
	// RootPrefix leads from this page back to the site root ("../" per
	// level below the root).
	RootPrefix string

	// PreviousPath is the neighbour's page URL relative to the site root;
	// PreviousHref has RootPrefix applied. Both are empty and
	// DisabledPrevious is "disabled" when there is no previous page.
	PreviousPath     string
	PreviousHref     string
	DisabledPrevious string
	HasPrevious      bool

	NextPath     string
	NextHref     string
	DisabledNext string
	HasNext      bool

	// Children is the child summary, empty for leaves and in the minimal
	// variant.
	Children template.HTML
}

func (c Context) htmlTitle() string       { return html.EscapeString(c.Title) }
func (c Context) htmlTitleHeader() string { return html.EscapeString(c.TitleHeader) }
