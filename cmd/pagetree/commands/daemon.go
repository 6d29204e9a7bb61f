package commands

import (
	"context"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagetree/internal/config"
	"git.home.luguber.info/inful/pagetree/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Once bool `help:"Run a single scheduled build (or skip) and exit"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return RunDaemon(ctx, g, cfg, d.Once)
}

// RunDaemon rebuilds on cfg.Daemon's schedule until ctx is done. With once
// set it performs a single run instead.
func RunDaemon(ctx context.Context, g *Global, cfg *config.Config, once bool) error {
	p, err := newPipeline(cfg, prom.NewRegistry())
	if err != nil {
		return err
	}
	defer p.Close()

	var opts []daemon.Option
	opts = append(opts, daemon.WithRecorder(p.Recorder))
	if p.History != nil {
		opts = append(opts, daemon.WithHistory(p.History))
	}
	d := daemon.New(p.Generator, cfg.Daemon, opts...)

	if once {
		res, err := d.RunOnce(ctx)
		switch {
		case res.Skipped:
			_, _ = fmt.Fprintf(g.Out, "Skipped: sources unchanged (fingerprint %s)\n", res.Fingerprint)
		case res.Report != nil:
			_, _ = fmt.Fprintf(g.Out, "Build %s: %s\n", res.Report.BuildID, res.Report.Summary())
		}
		return err
	}

	g.Logger.Info("Starting daemon mode", "schedule", cfg.Daemon.Schedule, "interval", cfg.Daemon.Interval)
	if err := d.Run(ctx); err != nil {
		return err
	}
	g.Logger.Info("Daemon stopped")
	return nil
}
