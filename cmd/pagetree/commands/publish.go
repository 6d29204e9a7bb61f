package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/publish"
	"git.home.luguber.info/inful/pagetree/internal/retry"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	Build  bool   `short:"b" help:"Build the site before uploading"`
	Prefix string `help:"Override publish.prefix"`
}

func (c *PublishCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if c.Prefix != "" {
		cfg.Publish.Prefix = c.Prefix
	}
	ctx, stop := signalContext()
	defer stop()

	if c.Build {
		if err := RunBuild(ctx, g, cfg); err != nil {
			return err
		}
	}

	if cfg.Publish.Endpoint == "" {
		return perrors.ValidationFailed("publish.endpoint", "is required to publish")
	}
	client, err := publish.NewClient(cfg.Publish)
	if err != nil {
		return err
	}
	return RunPublish(ctx, g, publish.New(client, cfg.Publish.Bucket, cfg.Publish.Prefix, cfg.Build.Concurrency), cfg)
}

// RunPublish uploads cfg.Output.Directory with p.
func RunPublish(ctx context.Context, g *Global, p *publish.Publisher, cfg *config.Config) error {
	g.Logger.Info("Publishing site", logfields.Output(cfg.Output.Directory), "bucket", cfg.Publish.Bucket)
	res, err := retry.Value(ctx, retry.FromConfig(cfg.Retry), func(ctx context.Context) (publish.Result, error) {
		return p.Publish(ctx, cfg.Output.Directory)
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "Published %d objects (%d bytes) to %s/%s in %s\n",
		res.Objects, res.Bytes, cfg.Publish.Bucket, cfg.Publish.Prefix, res.Duration.Round(time.Millisecond))
	return nil
}
