package render

import (
	"bufio"
	"bytes"
	"context"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

// GoldmarkRenderer renders in process. It understands the part of pandoc's
// template language the page templates use: $body$, $title$, $pagetitle$
// and the "$$" escape. A leading "% title" block sets the title.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

// NewGoldmark returns a GFM renderer.
func NewGoldmark() *GoldmarkRenderer {
	return &GoldmarkRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

func (g *GoldmarkRenderer) Name() string { return "goldmark" }

func (g *GoldmarkRenderer) RequiredMarkers() []string { return []string{"$body$"} }

func (g *GoldmarkRenderer) Escape(s string) string { return dollarEscape(s) }

func (g *GoldmarkRenderer) Render(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return perrors.ExternalTool(g.Name(), job.Node, err)
	}
	if err := ctx.Err(); err != nil {
		return perrors.ExternalTool(g.Name(), job.Node, err)
	}

	tmpl, err := os.ReadFile(filepath.Clean(job.Template))
	if err != nil {
		return perrors.FileSystem("read", job.Template, err)
	}
	src, err := g.readSource(job)
	if err != nil {
		return err
	}

	title, body := splitTitleBlock(src)
	var out bytes.Buffer
	if err := g.md.Convert(body, &out); err != nil {
		return perrors.ExternalTool(g.Name(), job.Node, err)
	}

	escaped := html.EscapeString(title)
	page := strings.NewReplacer(
		"$body$", out.String(),
		"$pagetitle$", escaped,
		"$title$", escaped,
		"$$", "$",
	).Replace(string(tmpl))

	if err := os.WriteFile(job.Output, []byte(page), 0o644); err != nil { // #nosec G306 - published site content
		return perrors.FileSystem("write", job.Output, err)
	}
	return nil
}

func (g *GoldmarkRenderer) readSource(job Job) ([]byte, error) {
	if job.SourceFile != "" {
		b, err := os.ReadFile(filepath.Clean(job.SourceFile))
		if err != nil {
			return nil, perrors.FileSystem("read", job.SourceFile, err)
		}
		return b, nil
	}
	b, err := io.ReadAll(job.Input)
	if err != nil {
		return nil, perrors.ExternalTool(g.Name(), job.Node, err)
	}
	return b, nil
}

// splitTitleBlock strips a pandoc title block ("% title" optionally followed
// by "% author" and "% date" lines) from the start of src and returns the
// title and the remaining document.
func splitTitleBlock(src []byte) (string, []byte) {
	if !bytes.HasPrefix(src, []byte("%")) {
		return "", src
	}
	var title string
	consumed := 0
	sc := bufio.NewScanner(bytes.NewReader(src))
	for line := 0; sc.Scan() && line < 3; line++ {
		text := sc.Text()
		if !strings.HasPrefix(text, "%") {
			break
		}
		if line == 0 {
			title = strings.TrimSpace(strings.TrimPrefix(text, "%"))
		}
		consumed += len(sc.Bytes()) + 1
	}
	if consumed > len(src) {
		consumed = len(src)
	}
	return title, src[consumed:]
}
