package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagetree/internal/config"
	"git.home.luguber.info/inful/pagetree/internal/history"
	"git.home.luguber.info/inful/pagetree/internal/metrics"
	"git.home.luguber.info/inful/pagetree/internal/notify"
	"git.home.luguber.info/inful/pagetree/internal/render"
	"git.home.luguber.info/inful/pagetree/internal/retry"
	"git.home.luguber.info/inful/pagetree/internal/site"
	"git.home.luguber.info/inful/pagetree/internal/source"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	// Out receives user-facing command output.
	Out io.Writer
}

// NewGlobal returns the context used by main.
func NewGlobal() *Global {
	return &Global{Logger: slog.Default(), Out: os.Stdout}
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pagetree.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the site once"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Tree    TreeCmd    `cmd:"" help:"Print the discovered page hierarchy"`
	Serve   ServeCmd   `cmd:"" help:"Build and serve the site with live reload"`
	Daemon  DaemonCmd  `cmd:"" help:"Rebuild the site on a schedule"`
	Publish PublishCmd `cmd:"" help:"Upload the generated site to object storage"`
	History HistoryCmd `cmd:"" help:"List recent builds"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadConfig reads the configuration and replaces the default logger with
// the one it describes.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.Logger = cfg.Logging.NewLogger(os.Stderr, root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// pipeline is a generator plus the resources it holds open.
type pipeline struct {
	Generator *site.Generator
	Recorder  metrics.Recorder
	History   history.Store
	notifier  *notify.Notifier
}

// Close releases the history database and the NATS connection.
func (p *pipeline) Close() {
	if p.History != nil {
		if err := p.History.Close(); err != nil {
			slog.Warn("Failed to close history store", "error", err)
		}
	}
	if p.notifier != nil {
		p.notifier.Close()
	}
}

// newPipeline wires a generator from cfg: renderer, optional git source,
// metrics on reg (nil disables them), history and NATS observers.
func newPipeline(cfg *config.Config, reg *prom.Registry) (*pipeline, error) {
	r, err := render.New(render.Options{
		Kind:    render.Kind(cfg.Renderer.Kind),
		Command: cfg.Renderer.Command,
		Args:    cfg.Renderer.Args,
		Timeout: cfg.Renderer.TimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}

	p := &pipeline{Recorder: metrics.NoopRecorder{}}
	var opts []site.Option
	if reg != nil {
		p.Recorder = metrics.NewPrometheusRecorder(reg)
		opts = append(opts, site.WithRecorder(p.Recorder))
	}
	if repo := cfg.Source.Repository; repo != nil {
		gitSource := source.NewGit(cfg.Source.Dir, *repo)
		opts = append(opts, site.WithContentSource(source.Retrying{Source: gitSource, Policy: retry.FromConfig(cfg.Retry)}))
	}
	if cfg.History.Database != "" {
		store, err := history.Open(cfg.History.Database)
		if err != nil {
			return nil, err
		}
		p.History = store
		opts = append(opts, site.WithObserver(&history.Observer{Store: store, Keep: cfg.History.Keep}))
	}
	if cfg.Notify.NATSURL != "" {
		n, err := notify.Connect(cfg.Notify)
		if err != nil {
			// Events are best effort; a missing broker never blocks a build.
			slog.Warn("Build notifications disabled", "url", cfg.Notify.NATSURL, "error", err)
		} else {
			p.notifier = n
			opts = append(opts, site.WithObserver(n))
		}
	}

	p.Generator = site.NewGenerator(cfg, r, opts...)
	return p, nil
}
