package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of builds to list" default:"20"`
	JSON  bool `name:"json" help:"Print the stored build reports as JSON"`
}

func (c *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	return RunHistory(context.Background(), g.Out, cfg, c.Limit, c.JSON)
}

// RunHistory prints the most recent builds recorded in cfg's history store.
func RunHistory(ctx context.Context, w io.Writer, cfg *config.Config, limit int, asJSON bool) error {
	if cfg.History.Database == "" {
		return perrors.ValidationFailed("history.database", "is not configured")
	}
	store, err := history.Open(cfg.History.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printHistoryJSON(w, records)
	}
	printHistoryTable(w, records)
	return nil
}

func printHistoryTable(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No builds recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tDURATION\tOUTCOME\tPAGES\tFAILED\tREVISION")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.BuildID, r.Start.Local().Format(time.DateTime), r.Duration().Round(time.Millisecond),
			r.Outcome, r.Pages, r.Failed, r.Revision)
	}
	_ = tw.Flush()
}

func printHistoryJSON(w io.Writer, records []history.Record) error {
	reports := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		if len(r.Report) > 0 {
			reports = append(reports, json.RawMessage(r.Report))
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
