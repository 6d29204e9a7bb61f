// Package daemon rebuilds the site on a schedule, skipping builds whose
// inputs have not changed since the last successful one.
package daemon

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/history"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/metrics"
	"git.home.luguber.info/inful/pagetree/internal/site"
)

// OutcomeSkipped marks a scheduled run that did not build.
const OutcomeSkipped metrics.BuildOutcomeLabel = "skipped"

// Builder is the part of site.Generator the daemon drives.
type Builder interface {
	Fingerprint(ctx context.Context) (string, error)
	Build(ctx context.Context) (*site.BuildReport, error)
}

// RunResult describes one scheduled run.
type RunResult struct {
	Skipped     bool
	Fingerprint string
	Report      *site.BuildReport
}

// Daemon owns the schedule and the skip decision.
type Daemon struct {
	builder  Builder
	cfg      config.DaemonConfig
	history  history.Store
	recorder metrics.Recorder

	// mu serializes runs; a cron tick and a manual run never overlap.
	mu sync.Mutex
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithHistory enables skipping unchanged builds against store.
func WithHistory(store history.Store) Option {
	return func(d *Daemon) { d.history = store }
}

// WithRecorder counts skipped runs.
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Daemon) {
		if r != nil {
			d.recorder = r
		}
	}
}

// New returns a daemon building with b on cfg's schedule.
func New(b Builder, cfg config.DaemonConfig, opts ...Option) *Daemon {
	d := &Daemon{builder: b, cfg: cfg, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce builds unless the current fingerprint matches the last successful
// build in history. Without history (or with always_build) it always builds.
func (d *Daemon) RunOnce(ctx context.Context) (RunResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history != nil && !d.cfg.AlwaysBuild {
		fp, skip, err := d.unchanged(ctx)
		if err != nil {
			return RunResult{}, err
		}
		if skip {
			slog.Info("Sources unchanged; skipping build", slog.String("fingerprint", fp))
			d.recorder.IncBuildOutcome(OutcomeSkipped)
			return RunResult{Skipped: true, Fingerprint: fp}, nil
		}
	}

	report, err := d.builder.Build(ctx)
	res := RunResult{Report: report}
	if report != nil {
		res.Fingerprint = report.Fingerprint
	}
	return res, err
}

func (d *Daemon) unchanged(ctx context.Context) (string, bool, error) {
	fp, err := d.builder.Fingerprint(ctx)
	if err != nil {
		return "", false, err
	}
	last, err := d.history.LastSuccessful(ctx)
	switch {
	case stdErrors.Is(err, history.ErrNotFound):
		return fp, false, nil
	case err != nil:
		// An unreadable history must not stop builds.
		slog.Warn("History lookup failed; building", logfields.Error(err))
		return fp, false, nil
	}
	return fp, fp != "" && last.Fingerprint == fp, nil
}

// Run schedules RunOnce (cron schedule wins over interval) and blocks
// until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	sched, err := NewScheduler()
	if err != nil {
		return perrors.Wrap(err, perrors.CategoryRuntime, perrors.SeverityFatal, "failed to create scheduler")
	}

	task := func() {
		start := time.Now()
		res, err := d.RunOnce(ctx)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			slog.Error("Scheduled build failed", logfields.Error(err), logfields.Since(start))
		case res.Report != nil:
			slog.Info("Scheduled build complete", logfields.BuildID(res.Report.BuildID),
				slog.String("outcome", string(res.Report.Outcome)), logfields.Since(start))
		}
	}

	switch {
	case d.cfg.Schedule != "":
		_, err = sched.ScheduleCron("pagetree-build", d.cfg.Schedule, task)
	default:
		_, err = sched.ScheduleEvery("pagetree-build", d.cfg.IntervalDuration(), task)
	}
	if err != nil {
		_ = sched.Stop(ctx)
		return perrors.ValidationFailed("daemon.schedule", err.Error())
	}

	if d.cfg.Schedule != "" {
		// Cron jobs first fire at the next match; build once on startup.
		task()
	}
	sched.Start(ctx)
	<-ctx.Done()
	if err := sched.Stop(context.Background()); err != nil {
		return perrors.Wrap(err, perrors.CategoryRuntime, perrors.SeverityError, "scheduler shutdown failed")
	}
	return nil
}
