package page

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template/parse"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

// Syntax selects how the base template references page values.
type Syntax string

const (
	// SyntaxGo is html/template with Context fields (escaping-safe).
	SyntaxGo Syntax = "go"
	// SyntaxSentinel is the legacy prefixed-token format, substituted in a
	// single pass.
	SyntaxSentinel Syntax = "sentinel"
)

// DefaultSentinelPrefix is the fixed prefix of legacy sentinel tokens.
const DefaultSentinelPrefix = "_l_l_l_l_0000ACTLAB_"

// Sentinel token suffixes.
const (
	TokenTitleHeader      = "titleHeader"
	TokenTitle            = "title"
	TokenRootIndex        = "rootIndex"
	TokenRootDir          = "rootDir"
	TokenPreviousPath     = "previousPath"
	TokenDisabledPrevious = "disabledPrevious"
	TokenNextPath         = "nextPath"
	TokenDisabledNext     = "disabledNext"
	TokenChildrenIndex    = "childrenIndex"
)

// requiredFields are the Context fields a Go-syntax template must reference;
// without them pages have no navigation or broken relative links.
var requiredFields = []string{"Nav", "RootPrefix"}

var requiredTokens = []string{TokenRootIndex, TokenRootDir}

//go:embed templates/default.html
var embeddedTemplates embed.FS

// DefaultTemplateName names the embedded base template in errors and logs.
const DefaultTemplateName = "embedded:default.html"

// Template is a parsed base template shared by every page.
type Template struct {
	name     string
	syntax   Syntax
	text     string
	prefix   string
	compiled *template.Template
}

// Name is the template's file path, or DefaultTemplateName.
func (t *Template) Name() string { return t.name }

// Syntax reports how the template is evaluated.
func (t *Template) Syntax() Syntax { return t.syntax }

// Text is the unparsed template source.
func (t *Template) Text() string { return t.text }

// DefaultTemplate returns the embedded Go-syntax base template text.
func DefaultTemplate() string {
	b, err := embeddedTemplates.ReadFile("templates/default.html")
	if err != nil {
		panic(fmt.Sprintf("embedded default template missing: %v", err))
	}
	return string(b)
}

// Load reads the base template at path, or the embedded default when path is
// empty, and checks it with Parse.
func Load(path string, syntax Syntax, sentinelPrefix string, markers []string) (*Template, error) {
	if path == "" {
		if syntax == SyntaxSentinel {
			return nil, perrors.ValidationFailed("template.file", "sentinel syntax requires a template file")
		}
		return Parse(DefaultTemplateName, DefaultTemplate(), SyntaxGo, "", markers)
	}
	// #nosec G304 - template path comes from trusted configuration
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, perrors.FileSystem("read", path, err)
	}
	return Parse(path, string(b), syntax, sentinelPrefix, markers)
}

// Parse compiles text and verifies that every required reference is present:
// the navigation index, the relative-root prefix, and each renderer marker
// (for example pandoc's "$body$"). A missing reference is reported as
// TemplateTokenMissing before any page is written.
func Parse(name, text string, syntax Syntax, sentinelPrefix string, markers []string) (*Template, error) {
	if syntax == "" {
		syntax = SyntaxGo
	}
	if sentinelPrefix == "" {
		sentinelPrefix = DefaultSentinelPrefix
	}
	t := &Template{name: name, syntax: syntax, text: text, prefix: sentinelPrefix}

	for _, m := range markers {
		if !strings.Contains(text, m) {
			return nil, perrors.TemplateTokenMissing(m, name)
		}
	}

	switch syntax {
	case SyntaxGo:
		compiled, err := template.New(filepath.Base(name)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, perrors.Wrap(err, perrors.CategoryTemplate, perrors.SeverityFatal, "template parse failed").
				WithContext("template", name)
		}
		used := referencedFields(compiled)
		for _, f := range requiredFields {
			if !used[f] {
				return nil, perrors.TemplateTokenMissing(f, name)
			}
		}
		t.compiled = compiled
	case SyntaxSentinel:
		for _, tok := range requiredTokens {
			if !strings.Contains(text, sentinelPrefix+tok) {
				return nil, perrors.TemplateTokenMissing(sentinelPrefix+tok, name)
			}
		}
	default:
		return nil, perrors.ValidationFailed("template.syntax", fmt.Sprintf("unknown syntax %q", syntax))
	}
	return t, nil
}

// Execute writes the template resolved against ctx to w.
func (t *Template) Execute(w io.Writer, ctx Context) error {
	if t.syntax == SyntaxSentinel {
		_, err := t.replacer(ctx).WriteString(w, t.text)
		return err
	}
	return t.compiled.Execute(w, ctx)
}

// replacer substitutes every sentinel in one pass, so substituted values are
// never rescanned. titleHeader precedes title so the longer token wins.
func (t *Template) replacer(ctx Context) *strings.Replacer {
	p := t.prefix
	return strings.NewReplacer(
		p+TokenTitleHeader, ctx.htmlTitleHeader(),
		p+TokenTitle, ctx.htmlTitle(),
		p+TokenRootIndex, string(ctx.Nav),
		p+TokenRootDir, ctx.RootPrefix,
		p+TokenPreviousPath, ctx.PreviousPath,
		p+TokenDisabledPrevious, ctx.DisabledPrevious,
		p+TokenNextPath, ctx.NextPath,
		p+TokenDisabledNext, ctx.DisabledNext,
		p+TokenChildrenIndex, string(ctx.Children),
	)
}

// referencedFields collects the top-level field names ({{.Name}}) used
// anywhere in tmpl or its associated templates.
func referencedFields(tmpl *template.Template) map[string]bool {
	used := make(map[string]bool)
	for _, assoc := range tmpl.Templates() {
		if assoc.Tree != nil {
			walk(assoc.Tree.Root, used)
		}
	}
	return used
}

func walk(node parse.Node, used map[string]bool) {
	switch n := node.(type) {
	case nil:
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walk(c, used)
		}
	case *parse.ActionNode:
		walk(n.Pipe, used)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			walk(c, used)
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			walk(a, used)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			used[n.Ident[0]] = true
		}
	case *parse.ChainNode:
		walk(n.Node, used)
	case *parse.IfNode:
		walkBranch(&n.BranchNode, used)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, used)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, used)
	case *parse.TemplateNode:
		walk(n.Pipe, used)
	}
}

func walkBranch(b *parse.BranchNode, used map[string]bool) {
	walk(b.Pipe, used)
	walk(b.List, used)
	walk(b.ElseList, used)
}
