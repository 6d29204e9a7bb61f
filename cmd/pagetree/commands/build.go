package commands

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/pagetree/internal/config"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output      string `short:"o" help:"Override output.directory"`
	Title       string `short:"t" help:"Override site.title"`
	Source      string `short:"s" help:"Override source.dir"`
	Variant     string `help:"Override site.variant (full|minimal)"`
	Concurrency int    `short:"j" help:"Override build.concurrency"`
	Renderer    string `short:"r" help:"Override renderer.kind (pandoc|goldmark|auto)"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if err := b.apply(cfg); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return RunBuild(ctx, g, cfg)
}

// apply overlays the flags that were given on cfg and revalidates it.
func (b *BuildCmd) apply(cfg *config.Config) error {
	if b.Output != "" {
		cfg.Output.Directory = b.Output
	}
	if b.Title != "" {
		cfg.Site.Title = b.Title
	}
	if b.Source != "" {
		cfg.Source.Dir = b.Source
	}
	if b.Variant != "" {
		cfg.Site.Variant = config.Variant(b.Variant)
	}
	if b.Concurrency != 0 {
		cfg.Build.Concurrency = b.Concurrency
	}
	if b.Renderer != "" {
		cfg.Renderer.Kind = b.Renderer
	}
	return config.Validate(cfg)
}

// RunBuild runs one build and prints its summary.
func RunBuild(ctx context.Context, g *Global, cfg *config.Config) error {
	// Provide friendly user-facing messages on stdout.
	_, _ = fmt.Fprintln(g.Out, "Starting pagetree build")

	p, err := newPipeline(cfg, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	g.Logger.Info("Starting site build",
		logfields.Source(cfg.Source.Dir),
		logfields.Output(cfg.Output.Directory),
		slog.String("renderer", p.Generator.Renderer().Name()))

	report, err := p.Generator.Build(ctx)
	if report != nil {
		_, _ = fmt.Fprintf(g.Out, "Build %s: %s\n", report.BuildID, report.Summary())
		for _, failed := range report.FailedPages {
			_, _ = fmt.Fprintf(g.Out, "  failed: %s\n", displayPath(failed))
		}
	}
	return err
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
