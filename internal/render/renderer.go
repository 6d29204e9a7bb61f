// Package render turns one page's source fragment and resolved template into
// an output HTML file.
//
// Renderer abstracts the conversion step so the external pandoc binary
// (PandocRenderer) can be swapped for the in-process GoldmarkRenderer or a
// test double without changing how pages are materialized.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

// Sentinel errors wrapped by renderer failures.
var (
	ErrRendererNotFound = errors.New("renderer binary not found")
	ErrRenderFailed     = errors.New("renderer execution failed")
	ErrInvalidJob       = errors.New("invalid render job")
)

// Kind names a renderer implementation.
type Kind string

const (
	KindPandoc   Kind = "pandoc"
	KindGoldmark Kind = "goldmark"
	// KindAuto uses pandoc when it is on PATH and goldmark otherwise.
	KindAuto Kind = "auto"
)

// Job is one page render. Exactly one of SourceFile and Input is set.
type Job struct {
	// Node is the page's node path, used to attribute failures.
	Node       string
	Template   string
	SourceFile string
	Input      io.Reader
	Output     string
}

func (j Job) validate() error {
	if j.Template == "" || j.Output == "" {
		return fmt.Errorf("%w: template and output are required", ErrInvalidJob)
	}
	if (j.SourceFile == "") == (j.Input == nil) {
		return fmt.Errorf("%w: exactly one of source file and input must be set", ErrInvalidJob)
	}
	return nil
}

// Renderer renders a single page.
type Renderer interface {
	Name() string
	Render(ctx context.Context, job Job) error
	// RequiredMarkers are strings the base template must contain for the
	// renderer to place page content.
	RequiredMarkers() []string
	// Escape makes s appear literally when substituted into a template the
	// renderer reads.
	Escape(s string) string
}

// Options configure New.
type Options struct {
	Kind    Kind
	Command string
	Args    []string
	Timeout time.Duration
}

// New returns the renderer selected by opts.Kind.
func New(opts Options) (Renderer, error) {
	switch opts.Kind {
	case KindPandoc:
		return NewPandoc(opts.Command, opts.Args, opts.Timeout), nil
	case KindGoldmark:
		return NewGoldmark(), nil
	case KindAuto, "":
		cmd := opts.Command
		if cmd == "" {
			cmd = DefaultPandocCommand
		}
		if _, err := exec.LookPath(cmd); err == nil {
			return NewPandoc(cmd, opts.Args, opts.Timeout), nil
		}
		return NewGoldmark(), nil
	default:
		return nil, perrors.ValidationFailed("renderer.kind", fmt.Sprintf("unknown renderer %q", opts.Kind))
	}
}

// Placeholder is the document rendered for a node without a content file: a
// single section headed by the node's title. The title is escaped so it
// renders as literal text.
func Placeholder(title string) io.Reader {
	return strings.NewReader("% index\n\n## " + EscapeMarkdown(title) + "\n")
}

// markdownPunct is the ASCII punctuation Markdown allows to be
// backslash-escaped.
const markdownPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// EscapeMarkdown backslash-escapes Markdown punctuation in s and folds line
// breaks into spaces, so s reads as plain inline text.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteByte(' ')
		case strings.ContainsRune(markdownPunct, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dollarEscape doubles "$" for pandoc-style templates.
func dollarEscape(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
