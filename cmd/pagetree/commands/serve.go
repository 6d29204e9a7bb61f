package commands

import (
	"context"
	"log/slog"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/pagetree/internal/config"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/preview"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr    string `short:"a" help:"Override serve.addr"`
	NoWatch bool   `name:"no-watch" help:"Do not rebuild when sources change"`
}

func (c *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Serve.Addr = c.Addr
	}
	if c.NoWatch {
		cfg.Serve.Watch = false
	}
	ctx, stop := signalContext()
	defer stop()
	return RunServe(ctx, g, cfg)
}

// RunServe builds the site, serves it on cfg.Serve.Addr and, when watching,
// rebuilds on source changes until ctx is done.
func RunServe(ctx context.Context, g *Global, cfg *config.Config) error {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := newPipeline(cfg, reg)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := preview.New(cfg.Output.Directory, p.Generator.Build, preview.Options{Registry: reg, Logger: g.Logger})

	// A failed first build still serves whatever output exists.
	if err := srv.BuildOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.Logger.Warn("Initial build failed", logfields.Error(err))
	}

	if cfg.Serve.Watch {
		roots, exclude := watchPaths(cfg)
		w, err := preview.NewWatcher(roots, exclude, cfg.Serve.DebounceDuration(), srv.RequestRebuild)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				g.Logger.Error("File watcher stopped", logfields.Error(err))
			}
		}()
		g.Logger.Info("Watching for changes", slog.Any("paths", roots))
	}

	return srv.ListenAndServe(ctx, cfg.Serve.Addr)
}

// watchPaths returns the directories whose changes trigger a rebuild and the
// generated directories that must never do so.
func watchPaths(cfg *config.Config) (roots, exclude []string) {
	roots = append(roots, cfg.Source.Dir)
	if cfg.Template.File != "" {
		roots = append(roots, filepath.Dir(cfg.Template.File))
	}
	if cfg.Assets.Source != "" {
		roots = append(roots, cfg.Assets.Source)
	}
	exclude = []string{cfg.Output.Directory, cfg.Output.WorkDir}
	if db := cfg.History.Database; db != "" {
		exclude = append(exclude, db, db+"-journal", db+"-wal", db+"-shm")
	}
	return roots, exclude
}
