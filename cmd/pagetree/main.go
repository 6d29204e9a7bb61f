// Command pagetree generates a static HTML site from a hierarchy of content
// directories.
package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagetree/cmd/pagetree/commands"
	"git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("pagetree"),
		kong.Description("Generate a navigable static site from a tree of content directories."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := commands.NewGlobal()
	err := ctx.Run(global, &cli)

	adapter := errors.NewCLIErrorAdapter(cli.Verbose, slog.Default())
	adapter.HandleError(err)
}
