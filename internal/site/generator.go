// Package site runs the staged build that turns a content tree into an
// output site: discovery, template resolution, output materialization,
// optional link verification, and reporting.
package site

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/metrics"
	"git.home.luguber.info/inful/pagetree/internal/render"
	"git.home.luguber.info/inful/pagetree/internal/workspace"
)

// ContentSource brings the content directory up to date before discovery.
type ContentSource interface {
	// Sync updates the content directory and returns its revision.
	Sync(ctx context.Context) (string, error)
}

// Generator builds a site from a configuration and a renderer.
type Generator struct {
	cfg       *config.Config
	renderer  render.Renderer
	recorder  metrics.Recorder
	observer  multiObserver
	source    ContentSource
	workspace *workspace.Manager
}

// Option customizes a Generator.
type Option func(*Generator)

// WithRecorder emits build, stage, and page metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(g *Generator) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithObserver adds o to the observers notified about stages and builds.
func WithObserver(o BuildObserver) Option {
	return func(g *Generator) {
		if o != nil {
			g.observer = append(g.observer, o)
		}
	}
}

// WithContentSource syncs s before every build.
func WithContentSource(s ContentSource) Option {
	return func(g *Generator) { g.source = s }
}

// WithWorkspace replaces the default persistent work area (output.work_dir).
func WithWorkspace(m *workspace.Manager) Option {
	return func(g *Generator) {
		if m != nil {
			g.workspace = m
		}
	}
}

// NewGenerator returns a Generator for cfg rendering pages with r.
func NewGenerator(cfg *config.Config, r render.Renderer, opts ...Option) *Generator {
	g := &Generator{
		cfg:       cfg,
		renderer:  r,
		recorder:  metrics.NoopRecorder{},
		workspace: workspace.NewPersistentManager(cfg.Output.WorkDir),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.observer = append(multiObserver{recorderObserver{rec: g.recorder}}, g.observer...)
	return g
}

// Config returns the generator's configuration.
func (g *Generator) Config() *config.Config { return g.cfg }

// Renderer returns the renderer pages are produced with.
func (g *Generator) Renderer() render.Renderer { return g.renderer }

func (g *Generator) stages() []StageDef {
	return []StageDef{
		{StageSource, stageSource},
		{StageDiscover, stageDiscover},
		{StageTemplates, stageTemplates},
		{StagePrepare, stagePrepare},
		{StageRender, stageRender},
		{StageVerify, stageVerify},
		{StageFinalize, stageFinalize},
	}
}

// Build runs one full build. The report is always returned, also on
// failure. The error is non-nil when a stage aborted the build or when any
// page failed to render, in which case the output is marked incomplete.
func (g *Generator) Build(ctx context.Context) (*BuildReport, error) {
	report := newBuildReport(uuid.NewString())
	report.Renderer = g.renderer.Name()
	report.OutputDir = g.cfg.Output.Directory
	bs := newBuildState(g, report)

	slog.Info("Build started",
		logfields.BuildID(report.BuildID),
		logfields.Source(g.cfg.Source.Dir),
		logfields.Output(g.cfg.Output.Directory),
		slog.String("renderer", report.Renderer))

	err := runStages(ctx, bs, g.stages())
	report.finish()
	report.deriveOutcome()
	g.observer.OnBuildComplete(report)

	if cerr := g.workspace.Cleanup(); cerr != nil {
		slog.Warn("Work area cleanup failed", logfields.Error(cerr))
	}
	if path := g.cfg.Output.ReportFile; path != "" {
		if perr := report.Persist(path); perr != nil {
			slog.Warn("Failed to persist build report", logfields.Path(path), logfields.Error(perr))
		}
	}

	slog.Info("Build finished",
		logfields.BuildID(report.BuildID),
		slog.String("outcome", string(report.Outcome)),
		logfields.Count(report.RenderedPages),
		slog.Int("failed", len(report.FailedPages)),
		logfields.DurationMS(float64(report.Duration().Microseconds())/1000))

	if err != nil {
		return report, err
	}
	if len(report.FailedPages) > 0 {
		return report, perrors.New(perrors.CategoryRenderer, perrors.SeverityError,
			fmt.Sprintf("%d of %d pages failed; output is incomplete", len(report.FailedPages), report.Pages)).
			WithContext("path", IncompleteMarkerPath(g.cfg.Output.Directory))
	}
	return report, nil
}
