package site

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pagetree/internal/assets"
	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/fingerprint"
	"git.home.luguber.info/inful/pagetree/internal/page"
	"git.home.luguber.info/inful/pagetree/internal/tree"
	"git.home.luguber.info/inful/pagetree/internal/verify"
)

// IncompleteMarker is written to the output root when any page failed. It
// lists the failed node paths, one per line.
const IncompleteMarker = ".pagetree-incomplete"

// IncompleteMarkerPath is the marker location for outputDir.
func IncompleteMarkerPath(outputDir string) string {
	return filepath.Join(outputDir, IncompleteMarker)
}

func stageSource(ctx context.Context, bs *BuildState) error {
	src := bs.Generator.source
	if src == nil {
		return nil
	}
	rev, err := src.Sync(ctx)
	if err != nil {
		return newFatalStageError(StageSource, err)
	}
	bs.Report.Revision = rev
	return nil
}

func stageDiscover(_ context.Context, bs *BuildState) error {
	cfg := bs.Generator.cfg
	t, err := tree.Build(cfg.Site.Title, cfg.Source.Dir, tree.Options{
		IndexFile:       cfg.Source.IndexFile,
		AllowCollisions: cfg.Build.AllowCollisions,
	})
	if err != nil {
		return newFatalStageError(StageDiscover, err)
	}
	bs.Tree = t
	bs.Report.Pages = t.Len()
	if ws := t.Warnings(); len(ws) > 0 {
		return newWarnStageError(StageDiscover, stdErrors.Join(ws...))
	}
	return nil
}

// stageTemplates loads and checks the base template, then resolves every
// node's template into a freshly reset work area. A template problem aborts
// the build here, before the output area is touched.
func stageTemplates(_ context.Context, bs *BuildState) error {
	g := bs.Generator
	tmpl, err := g.loadTemplate()
	if err != nil {
		return newFatalStageError(StageTemplates, err)
	}
	bs.Template = tmpl

	workArea, err := g.workspace.Create()
	if err != nil {
		return newFatalStageError(StageTemplates, err)
	}
	bs.WorkArea = workArea
	bs.Resolver = page.NewResolver(bs.Tree, tmpl, page.Options{
		Variant:         page.Variant(g.cfg.Site.Variant),
		ChildrenHeading: g.cfg.Template.ChildrenHeading,
		Escape:          g.renderer.Escape,
	})
	if err := bs.Resolver.ResolveRoot(workArea); err != nil {
		return newFatalStageError(StageTemplates, err)
	}

	fp, err := g.fingerprint(bs.Tree, tmpl)
	if err != nil {
		return newWarnStageError(StageTemplates, err)
	}
	bs.Report.Fingerprint = fp
	return nil
}

// stagePrepare is the barrier between global setup and per-node output: the
// output area is reset and seeded exactly once, before any page is written.
func stagePrepare(_ context.Context, bs *BuildState) error {
	g := bs.Generator
	bs.Materializer = NewMaterializer(g.renderer, MaterializerOptions{
		Seeder:      g.seeder(),
		IndexFile:   g.cfg.Source.IndexFile,
		Concurrency: g.cfg.Build.Concurrency,
		Recorder:    g.recorder,
	})
	n, err := bs.Materializer.Prepare(g.cfg.Output.Directory)
	bs.Report.AssetsCopied = n
	if err != nil {
		return newFatalStageError(StagePrepare, err)
	}
	return nil
}

func stageRender(ctx context.Context, bs *BuildState) error {
	failures, err := bs.Materializer.EmitSubtree(ctx, bs.Tree, bs.Tree.Root())
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StageRender, err)
		}
		return newFatalStageError(StageRender, err)
	}
	bs.Failures = failures
	bs.Report.RenderedPages = bs.Tree.Len() - len(failures)
	if len(failures) == 0 {
		return nil
	}
	for _, f := range failures {
		label := nodeLabel(f.Path)
		bs.Report.FailedPages = append(bs.Report.FailedPages, label)
		bs.Report.AddIssue(IssueRenderFailure, StageRender, SeverityError, f.Err.Error(), label, nil)
	}
	return newWarnStageError(StageRender, fmt.Errorf("%w: %d of %d", ErrPartialOutput, len(failures), bs.Tree.Len()))
}

func stageVerify(_ context.Context, bs *BuildState) error {
	if !bs.Generator.cfg.Build.VerifyLinks {
		return nil
	}
	res, err := verify.Site(bs.Generator.cfg.Output.Directory)
	if err != nil {
		return newWarnStageError(StageVerify, err)
	}
	if res.OK() {
		return nil
	}
	for _, b := range res.Broken {
		bs.Report.AddIssue(IssueBrokenLinks, StageVerify, SeverityWarning,
			fmt.Sprintf("%s links to missing %s", b.Page, b.URL), b.Page, nil)
	}
	return newWarnStageError(StageVerify, fmt.Errorf("%d broken links in %d pages", len(res.Broken), res.Pages))
}

func stageFinalize(_ context.Context, bs *BuildState) error {
	marker := IncompleteMarkerPath(bs.Generator.cfg.Output.Directory)
	if len(bs.Failures) == 0 {
		if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			return newWarnStageError(StageFinalize, perrors.FileSystem("remove", marker, err))
		}
		return nil
	}
	var b strings.Builder
	for _, f := range bs.Failures {
		b.WriteString(nodeLabel(f.Path))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(marker, []byte(b.String()), 0o600); err != nil {
		return newFatalStageError(StageFinalize, perrors.FileSystem("write", marker, err))
	}
	return nil
}

// Fingerprint syncs the content source, discovers the tree, and loads the
// template without touching any output, then returns the fingerprint the
// next build would record.
func (g *Generator) Fingerprint(ctx context.Context) (string, error) {
	bs := newBuildState(g, newBuildReport(""))
	for _, st := range []Stage{stageSource, stageDiscover} {
		if err := st(ctx, bs); err != nil {
			var se *StageError
			if !stdErrors.As(err, &se) || se.Kind != StageErrorWarning {
				return "", err
			}
		}
	}
	tmpl, err := g.loadTemplate()
	if err != nil {
		return "", err
	}
	return g.fingerprint(bs.Tree, tmpl)
}

func (g *Generator) loadTemplate() (*page.Template, error) {
	tc := g.cfg.Template
	return page.Load(tc.File, page.Syntax(tc.Syntax), tc.SentinelPrefix, g.renderer.RequiredMarkers())
}

func (g *Generator) fingerprint(t *tree.Tree, tmpl *page.Template) (string, error) {
	settings := fmt.Sprintf("variant: %s\nrenderer: %s\nchildren_heading: %s\nassets: %s\n---\n%s",
		g.cfg.Site.Variant, g.renderer.Name(), g.cfg.Template.ChildrenHeading, g.cfg.Assets.Source, tmpl.Text())
	return fingerprint.Tree(t, g.cfg.Source.IndexFile, settings)
}

// seeder copies individual asset files for the full variant and the whole
// bundle for the minimal one.
func (g *Generator) seeder() assets.Seeder {
	s := assets.Seeder{Source: g.cfg.Assets.Source, Files: g.cfg.Assets.Files}
	if g.cfg.Site.Variant == config.VariantMinimal {
		s.Mode = assets.ModeBundle
	}
	return s
}

func nodeLabel(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
