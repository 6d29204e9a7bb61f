package render

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestPlaceholder(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"setup", "% index\n\n## setup\n"},
		{"序論", "% index\n\n## 序論\n"},
		{"a*b*c", "% index\n\n## a\\*b\\*c\n"},
		{"<b>x</b>", "% index\n\n## \\<b\\>x\\</b\\>\n"},
		{"[link](u) $x$", "% index\n\n## \\[link\\]\\(u\\) \\$x\\$\n"},
		{"two\nlines", "% index\n\n## two lines\n"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			b, err := io.ReadAll(Placeholder(tt.title))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestGoldmark_PlaceholderTitleIsLiteral(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "template.html", "$body$")
	out := filepath.Join(dir, "index.html")

	require.NoError(t, NewGoldmark().Render(t.Context(), Job{Template: tmpl, Input: Placeholder("a*b*c <i>x</i>"), Output: out}))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "a*b*c &lt;i&gt;x&lt;/i&gt;")
	assert.NotContains(t, string(b), "<em>")
	assert.NotContains(t, string(b), "<i>")
}

func TestSplitTitleBlock(t *testing.T) {
	title, body := splitTitleBlock([]byte("% index\n% me\n\n## setup\n"))
	assert.Equal(t, "index", title)
	assert.Equal(t, "\n## setup\n", string(body))

	title, body = splitTitleBlock([]byte("# Plain\n"))
	assert.Empty(t, title)
	assert.Equal(t, "# Plain\n", string(body))

	title, body = splitTitleBlock([]byte("% only"))
	assert.Equal(t, "only", title)
	assert.Empty(t, body)
}

func TestGoldmark_RenderSourceFile(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "template.html", dedent.Dedent(`
		<title>$pagetitle$</title>
		<p>price $$5</p>
		<main>$body$</main>
	`))
	src := writeFile(t, dir, "index.md", "# Intro\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	out := filepath.Join(dir, "index.html")

	r := NewGoldmark()
	require.NoError(t, r.Render(t.Context(), Job{Node: "/0010", Template: tmpl, SourceFile: src, Output: out}))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	page := string(b)
	assert.Contains(t, page, "<title></title>")
	assert.Contains(t, page, "price $5")
	assert.Contains(t, page, `<h1 id="intro">Intro</h1>`)
	assert.Contains(t, page, "<table>")
}

func TestGoldmark_RenderPlaceholder(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "template.html", "<title>$title$</title>$body$")
	out := filepath.Join(dir, "index.html")

	require.NoError(t, NewGoldmark().Render(t.Context(), Job{Template: tmpl, Input: Placeholder("set <up>"), Output: out}))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "<title>index</title>"))
	assert.Contains(t, string(b), "<h2")
}

func TestGoldmark_InvalidJob(t *testing.T) {
	err := NewGoldmark().Render(t.Context(), Job{Template: "t", Output: "o"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJob))
	assert.True(t, perrors.IsCategory(err, perrors.CategoryRenderer))
}

func TestGoldmark_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := NewGoldmark().Render(ctx, Job{Template: "t", SourceFile: "s", Output: "o"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPandoc_MissingBinary(t *testing.T) {
	r := NewPandoc("pagetree-no-such-renderer", nil, 0)
	err := r.Render(t.Context(), Job{Node: "/0020", Template: "t", SourceFile: "s", Output: "o"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRendererNotFound))
	pte, ok := perrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "/0020", pte.Context["node"])
}

// fakePandoc installs a shell script standing in for pandoc.
func fakePandoc(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script renderer not supported on windows")
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "fake-pandoc")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o700)) // #nosec G306 - test executable
	return p
}

func TestPandoc_PassesArgumentsAndStdin(t *testing.T) {
	// Writes its arguments and stdin to the --output file.
	bin := fakePandoc(t, dedent.Dedent(`
		out=""
		for a in "$@"; do
		  case "$a" in --output=*) out="${a#--output=}";; esac
		done
		echo "$@" > "$out"
		cat >> "$out"
	`))
	dir := t.TempDir()
	out := filepath.Join(dir, "index.html")

	r := NewPandoc(bin, []string{"--standalone"}, 0)
	require.NoError(t, r.Render(t.Context(), Job{Template: "tmpl.html", Input: Placeholder("setup"), Output: out}))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "--output="+out+" --template=tmpl.html --standalone\n% index\n\n## setup\n", string(b))
}

func TestPandoc_NonZeroExit(t *testing.T) {
	bin := fakePandoc(t, "echo 'template error' >&2\nexit 3\n")
	r := NewPandoc(bin, nil, 0)
	err := r.Render(t.Context(), Job{Node: "/0010", Template: "t", SourceFile: "s", Output: "o"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRenderFailed))
	assert.Contains(t, err.Error(), "template error")
}

func TestNew(t *testing.T) {
	r, err := New(Options{Kind: KindGoldmark})
	require.NoError(t, err)
	assert.Equal(t, "goldmark", r.Name())

	r, err = New(Options{Kind: KindPandoc})
	require.NoError(t, err)
	assert.Equal(t, "pandoc", r.Name())

	r, err = New(Options{Kind: KindAuto, Command: "pagetree-no-such-renderer"})
	require.NoError(t, err)
	assert.Equal(t, "goldmark", r.Name())

	_, err = New(Options{Kind: "wkhtml"})
	assert.True(t, perrors.IsCategory(err, perrors.CategoryValidation))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a $$1 b", NewPandoc("", nil, 0).Escape("a $1 b"))
	assert.Equal(t, []string{"$body$"}, NewGoldmark().RequiredMarkers())
}
