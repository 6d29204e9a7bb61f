package site

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

// runStages executes stages in order, recording timing and classification
// and stopping on the first fatal or canceled stage.
func runStages(ctx context.Context, bs *BuildState, stages []StageDef) error {
	g := bs.Generator
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			se := newCanceledStageError(st.Name, err)
			bs.Report.StageErrorKinds[st.Name] = se.Kind
			bs.Report.AddIssue(IssueCanceled, st.Name, SeverityError, se.Error(), "", se)
			bs.Report.recordStageResult(st.Name, StageResultCanceled, g.recorder)
			g.observer.OnStageComplete(st.Name, 0, StageResultCanceled)
			return se
		}

		g.observer.OnStageStart(st.Name)
		t0 := time.Now()
		err := st.Fn(ctx, bs)
		dur := time.Since(t0)
		bs.Report.StageDurations[st.Name] = dur

		out := classifyStageResult(st.Name, err)
		if out.Error != nil {
			bs.Report.StageErrorKinds[st.Name] = out.Error.Kind
			bs.Report.AddIssue(out.IssueCode, st.Name, out.Severity, out.Error.Error(), "", out.Error)
			slog.Log(ctx, levelFor(out.Result), "Stage finished with error",
				logfields.BuildID(bs.Report.BuildID),
				logfields.Stage(string(st.Name)),
				logfields.Error(out.Error.Err))
		} else {
			slog.Debug("Stage complete",
				logfields.BuildID(bs.Report.BuildID),
				logfields.Stage(string(st.Name)),
				logfields.DurationMS(float64(dur.Microseconds())/1000))
		}
		bs.Report.recordStageResult(st.Name, out.Result, g.recorder)
		g.observer.OnStageComplete(st.Name, dur, out.Result)

		if out.Abort {
			if out.Error != nil {
				return out.Error
			}
			return fmt.Errorf("stage %s aborted", st.Name)
		}
	}
	return nil
}

func levelFor(res StageResult) slog.Level {
	if res == StageResultWarning {
		return slog.LevelWarn
	}
	return slog.LevelError
}
