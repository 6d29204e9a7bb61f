package site

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagetree/internal/metrics"
)

func TestBuildReport_DeriveOutcome(t *testing.T) {
	warn := newWarnStageError(StageVerify, errors.New("broken"))
	fatal := newFatalStageError(StageDiscover, errors.New("missing"))
	canceled := newCanceledStageError(StageRender, errors.New("canceled"))

	tests := []struct {
		name  string
		setup func(r *BuildReport)
		want  BuildOutcome
	}{
		{"clean", func(*BuildReport) {}, OutcomeSuccess},
		{"warning", func(r *BuildReport) { r.Warnings = append(r.Warnings, warn) }, OutcomeWarning},
		{"failed pages", func(r *BuildReport) {
			r.Warnings = append(r.Warnings, warn)
			r.FailedPages = []string{"/0010"}
		}, OutcomeFailed},
		{"fatal", func(r *BuildReport) { r.Errors = append(r.Errors, fatal) }, OutcomeFailed},
		{"canceled wins", func(r *BuildReport) { r.Errors = append(r.Errors, fatal, canceled) }, OutcomeCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newBuildReport("id")
			tt.setup(r)
			r.deriveOutcome()
			assert.Equal(t, tt.want, r.Outcome)
		})
	}
}

func TestBuildReport_AddIssue(t *testing.T) {
	r := newBuildReport("id")
	r.AddIssue(IssueRenderFailure, StageRender, SeverityError, "boom", "/0010", nil)
	r.AddIssue(IssueBrokenLinks, StageVerify, SeverityWarning, "x", "", errors.New("x"))
	r.AddIssue(IssueTemplate, StageTemplates, SeverityError, "y", "", errors.New("y"))

	require.Len(t, r.Issues, 3)
	assert.Equal(t, "/0010", r.Issues[0].Node)
	assert.Len(t, r.Warnings, 1)
	assert.Len(t, r.Errors, 1)
}

type countingRecorder struct {
	metrics.NoopRecorder
	results map[string]metrics.ResultLabel
}

func (c *countingRecorder) IncStageResult(stage string, res metrics.ResultLabel) {
	c.results[stage] = res
}

func TestBuildReport_RecordStageResult(t *testing.T) {
	r := newBuildReport("id")
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	r.recordStageResult(StageRender, StageResultWarning, rec)
	r.recordStageResult(StageRender, StageResultSuccess, rec)
	r.recordStageResult(StageVerify, StageResultFatal, nil)

	assert.Equal(t, StageCount{Success: 1, Warning: 1}, r.StageCounts[StageRender])
	assert.Equal(t, StageCount{Fatal: 1}, r.StageCounts[StageVerify])
	assert.Equal(t, metrics.ResultSuccess, rec.results["render"])
}

func TestBuildReport_Persist(t *testing.T) {
	r := newBuildReport("b-1")
	r.Pages = 4
	r.RenderedPages = 3
	r.FailedPages = []string{"/0020"}
	r.StageDurations[StageRender] = 1500 * time.Millisecond
	r.Warnings = append(r.Warnings, newWarnStageError(StageRender, ErrPartialOutput))

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, r.Persist(path))
	assert.NoFileExists(t, path+".tmp")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "b-1", got["build_id"])
	assert.Equal(t, "failed", got["outcome"])
	assert.Equal(t, float64(1500), got["stage_durations_ms"].(map[string]any)["render"])
	assert.Equal(t, []any{"warning stage render: some pages failed to render"}, got["warnings"])
	assert.Equal(t, []any{}, got["issues"])
	assert.False(t, r.End.IsZero())
}

func TestBuildReport_Summary(t *testing.T) {
	r := newBuildReport("id")
	r.Pages = 2
	r.RenderedPages = 2
	r.finish()
	r.deriveOutcome()
	assert.Contains(t, r.Summary(), "pages=2 rendered=2 failed=0")
	assert.Contains(t, r.Summary(), "outcome=success")
}
