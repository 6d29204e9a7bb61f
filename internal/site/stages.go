package site

import (
	"context"
	"errors"
	"fmt"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/page"
	"git.home.luguber.info/inful/pagetree/internal/tree"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageName is a strongly-typed identifier for a build stage.
type StageName string

// Canonical stage names, in execution order.
const (
	StageSource    StageName = "source"
	StageDiscover  StageName = "discover"
	StageTemplates StageName = "templates"
	StagePrepare   StageName = "prepare"
	StageRender    StageName = "render"
	StageVerify    StageName = "verify"
	StageFinalize  StageName = "finalize"
)

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// ErrPartialOutput marks a render stage in which some pages failed.
var ErrPartialOutput = errors.New("some pages failed to render")

// BuildState carries mutable state across stages.
type BuildState struct {
	Generator *Generator
	Report    *BuildReport

	Tree         *tree.Tree
	Template     *page.Template
	Resolver     *page.Resolver
	Materializer *Materializer
	// WorkArea holds the resolved templates of this build.
	WorkArea string
	// Failures are the per-node render failures in document order.
	Failures []NodeFailure
}

func newBuildState(g *Generator, report *BuildReport) *BuildState {
	return &BuildState{Generator: g, Report: report}
}

// StageOutcome is the normalized result of one stage execution.
type StageOutcome struct {
	Stage     StageName
	Error     *StageError
	Result    StageResult
	IssueCode ReportIssueCode
	Severity  IssueSeverity
	Abort     bool
}

func classifyStageResult(stage StageName, err error) StageOutcome {
	if err == nil {
		return StageOutcome{Stage: stage, Result: StageResultSuccess}
	}
	var se *StageError
	if !errors.As(err, &se) {
		se = newFatalStageError(stage, err)
	}
	if errors.Is(se.Err, context.Canceled) || errors.Is(se.Err, context.DeadlineExceeded) {
		se.Kind = StageErrorCanceled
	}
	out := StageOutcome{Stage: stage, Error: se, IssueCode: issueCodeFor(se)}
	switch se.Kind {
	case StageErrorWarning:
		out.Result = StageResultWarning
		out.Severity = SeverityWarning
	case StageErrorCanceled:
		out.Result = StageResultCanceled
		out.Severity = SeverityError
		out.Abort = true
	default:
		out.Result = StageResultFatal
		out.Severity = SeverityError
		out.Abort = true
	}
	return out
}

func issueCodeFor(se *StageError) ReportIssueCode {
	if se.Kind == StageErrorCanceled {
		return IssueCanceled
	}
	if errors.Is(se.Err, ErrPartialOutput) {
		return IssueRenderFailure
	}
	switch perrors.GetCategory(se.Err) {
	case perrors.CategorySource:
		if se.Stage == StageSource {
			return IssueSourceSync
		}
		return IssueMissingSource
	case perrors.CategoryNaming:
		return IssueNamingCollision
	case perrors.CategoryTemplate:
		return IssueTemplate
	case perrors.CategoryFileSystem:
		return IssueFileSystem
	case perrors.CategoryRenderer:
		return IssueRenderFailure
	}
	if se.Stage == StageVerify {
		return IssueBrokenLinks
	}
	return IssueGenericStageError
}
