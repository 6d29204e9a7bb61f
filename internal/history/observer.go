package history

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/site"
)

// Observer records every finished build in a Store and prunes it to Keep
// records. It is a site.BuildObserver.
type Observer struct {
	site.NoopObserver

	Store Store
	Keep  int
}

// OnBuildComplete appends the report. Failures are logged; history never
// changes a build's outcome.
func (o *Observer) OnBuildComplete(r *site.BuildReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := FromReport(r)
	if err == nil {
		err = o.Store.Append(ctx, rec)
	}
	if err != nil {
		slog.Warn("Build not recorded in history", logfields.BuildID(r.BuildID), logfields.Error(err))
		return
	}
	if removed, err := o.Store.Prune(ctx, o.Keep); err != nil {
		slog.Warn("History prune failed", logfields.Error(err))
	} else if removed > 0 {
		slog.Debug("History pruned", logfields.Count(int(removed)))
	}
}
