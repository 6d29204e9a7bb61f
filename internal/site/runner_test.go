package site

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagetree/internal/config"
)

func testGenerator() *Generator {
	return NewGenerator(config.Default(), newFakeRenderer())
}

func TestRunStages_Classification(t *testing.T) {
	var ran []StageName
	step := func(name StageName, err error) StageDef {
		return StageDef{Name: name, Fn: func(context.Context, *BuildState) error {
			ran = append(ran, name)
			return err
		}}
	}

	report := newBuildReport("id")
	bs := newBuildState(testGenerator(), report)
	err := runStages(t.Context(), bs, []StageDef{
		step("a", nil),
		step("b", newWarnStageError("b", errors.New("soft"))),
		step("c", errors.New("plain")),
		step("d", nil),
	})

	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, StageName("c"), se.Stage)
	assert.Equal(t, []StageName{"a", "b", "c"}, ran)

	assert.Equal(t, 1, report.StageCounts["a"].Success)
	assert.Equal(t, 1, report.StageCounts["b"].Warning)
	assert.Equal(t, 1, report.StageCounts["c"].Fatal)
	assert.Equal(t, StageErrorWarning, report.StageErrorKinds["b"])
	require.Len(t, report.Issues, 2)
	assert.Equal(t, IssueGenericStageError, report.Issues[1].Code)
	assert.Contains(t, report.StageDurations, StageName("a"))
}

func TestRunStages_ContextErrorIsCanceled(t *testing.T) {
	report := newBuildReport("id")
	bs := newBuildState(testGenerator(), report)
	err := runStages(t.Context(), bs, []StageDef{{
		Name: StageRender,
		Fn: func(context.Context, *BuildState) error {
			return newFatalStageError(StageRender, context.DeadlineExceeded)
		},
	}})

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorCanceled, se.Kind)
	assert.Equal(t, 1, report.StageCounts[StageRender].Canceled)
	assert.Equal(t, IssueCanceled, report.Issues[0].Code)
}
