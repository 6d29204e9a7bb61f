package page

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/tree"
)

func scenario(t *testing.T) *tree.Tree {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"0010_intro", "0020_setup/0010_part1"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o750))
	}
	tr, err := tree.Build("T", root, tree.Options{})
	require.NoError(t, err)
	return tr
}

func lookup(t *testing.T, tr *tree.Tree, path string) *tree.Node {
	t.Helper()
	n, ok := tr.Lookup(path)
	require.True(t, ok, "node %q", path)
	return n
}

func TestResolver_Context(t *testing.T) {
	tr := scenario(t)
	tmpl, err := Load("", SyntaxGo, "", pandocMarkers)
	require.NoError(t, err)
	r := NewResolver(tr, tmpl, Options{ChildrenHeading: "Contents"})

	root := r.Context(tr.Root())
	assert.Equal(t, "T", root.Title)
	assert.Equal(t, "T", root.TitleHeader)
	assert.Equal(t, "", root.RootPrefix)
	assert.False(t, root.HasPrevious)
	assert.Equal(t, Disabled, root.DisabledPrevious)
	assert.Empty(t, root.PreviousHref)
	assert.Equal(t, "0010/index.html", root.NextHref)
	assert.Contains(t, string(root.Children), `href="0020/index.html"`)

	part := r.Context(lookup(t, tr, "/0020/0010"))
	assert.Equal(t, "part1 - T", part.Title)
	assert.Equal(t, "../../", part.RootPrefix)
	assert.Equal(t, "0020/index.html", part.PreviousPath)
	assert.Equal(t, "../../0020/index.html", part.PreviousHref)
	assert.Empty(t, part.DisabledPrevious)
	assert.False(t, part.HasNext)
	assert.Equal(t, Disabled, part.DisabledNext)
	assert.Empty(t, part.Children)
	assert.Contains(t, string(part.Nav), `href="../../0020/0010/index.html"`)

	intro := r.Context(lookup(t, tr, "/0010"))
	assert.Equal(t, "intro - T", intro.Title)
	assert.Equal(t, "../", intro.RootPrefix)
	assert.Equal(t, "../index.html", intro.PreviousHref)
	assert.Equal(t, "../0020/index.html", intro.NextHref)
}

func TestResolver_MinimalVariant(t *testing.T) {
	tr := scenario(t)
	tmpl, err := Load("", SyntaxGo, "", pandocMarkers)
	require.NoError(t, err)
	r := NewResolver(tr, tmpl, Options{Variant: VariantMinimal})

	ctx := r.Context(lookup(t, tr, "/0020"))
	assert.False(t, ctx.HasPrevious)
	assert.False(t, ctx.HasNext)
	assert.Equal(t, Disabled, ctx.DisabledPrevious)
	assert.Equal(t, Disabled, ctx.DisabledNext)
	assert.Empty(t, ctx.Children)
	assert.NotEmpty(t, ctx.Nav)
}

func TestResolver_EscapeHook(t *testing.T) {
	tr := scenario(t)
	tr.Root().Title = "Costs $5"
	tmpl, err := Load("", SyntaxGo, "", pandocMarkers)
	require.NoError(t, err)
	r := NewResolver(tr, tmpl, Options{Escape: func(s string) string { return strings.ReplaceAll(s, "$", "$$") }})

	ctx := r.Context(lookup(t, tr, "/0010"))
	assert.Equal(t, "intro - Costs $$5", ctx.Title)
	assert.Contains(t, string(ctx.Nav), "Costs $$5")
}

func TestResolver_ResolveRootWritesMirroredTemplates(t *testing.T) {
	tr := scenario(t)
	tmpl, err := Load("", SyntaxGo, "", pandocMarkers)
	require.NoError(t, err)
	work := filepath.Join(t.TempDir(), "templateTmp")
	require.NoError(t, os.MkdirAll(filepath.Join(work, "stale"), 0o750))

	r := NewResolver(tr, tmpl, Options{})
	require.NoError(t, r.ResolveRoot(work))

	assert.NoDirExists(t, filepath.Join(work, "stale"))
	want := map[string]string{
		"":           filepath.Join(work, ResolvedTemplateFile),
		"/0010":      filepath.Join(work, "0010", ResolvedTemplateFile),
		"/0020":      filepath.Join(work, "0020", ResolvedTemplateFile),
		"/0020/0010": filepath.Join(work, "0020", "0010", ResolvedTemplateFile),
	}
	for path, file := range want {
		n := lookup(t, tr, path)
		assert.Equal(t, file, n.ResolvedTemplate)
		assert.FileExists(t, file)
	}

	b, err := os.ReadFile(want["/0020/0010"])
	require.NoError(t, err)
	page := string(b)
	assert.Contains(t, page, "<title>part1 - T</title>")
	assert.Contains(t, page, `href="../../css/bootstrap.min.css"`)
	assert.Contains(t, page, `href="../../0020/index.html">&laquo; Previous`)
	assert.Contains(t, page, "$body$")
}

func TestResolver_ResolveNodeBeforePrepare(t *testing.T) {
	tr := scenario(t)
	tmpl, err := Load("", SyntaxGo, "", pandocMarkers)
	require.NoError(t, err)
	err = NewResolver(tr, tmpl, Options{}).ResolveNode(tr.Root())
	assert.True(t, perrors.IsCategory(err, perrors.CategoryInternal))
}

func TestResolver_Idempotent(t *testing.T) {
	tr := scenario(t)
	tmpl, err := Load("", SyntaxGo, "", pandocMarkers)
	require.NoError(t, err)
	work := filepath.Join(t.TempDir(), "work")
	r := NewResolver(tr, tmpl, Options{})

	require.NoError(t, r.ResolveRoot(work))
	first, err := os.ReadFile(filepath.Join(work, "0010", ResolvedTemplateFile))
	require.NoError(t, err)
	require.NoError(t, r.ResolveRoot(work))
	second, err := os.ReadFile(filepath.Join(work, "0010", ResolvedTemplateFile))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
