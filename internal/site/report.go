package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/metrics"
)

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// StageResult enumerates per-stage classification outcomes.
// Mirrors metrics.ResultLabel values to simplify emission.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
)

// ReportIssueCode enumerates machine-parseable issue identifiers.
// These codes are a stable contract and are only ever appended.
type ReportIssueCode string

const (
	IssueSourceSync        ReportIssueCode = "SOURCE_SYNC_FAILURE"
	IssueMissingSource     ReportIssueCode = "MISSING_SOURCE"
	IssueNamingCollision   ReportIssueCode = "NAMING_COLLISION"
	IssueTemplate          ReportIssueCode = "TEMPLATE_ERROR"
	IssueFileSystem        ReportIssueCode = "FILESYSTEM_ERROR"
	IssueRenderFailure     ReportIssueCode = "RENDER_FAILURE"
	IssueBrokenLinks       ReportIssueCode = "BROKEN_LINKS"
	IssueCanceled          ReportIssueCode = "BUILD_CANCELED"
	IssueGenericStageError ReportIssueCode = "GENERIC_STAGE_ERROR"
)

// IssueSeverity represents normalized severity levels.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ReportIssue is a structured entry describing a discrete problem.
type ReportIssue struct {
	Code     ReportIssueCode `json:"code"`
	Stage    StageName       `json:"stage"`
	Severity IssueSeverity   `json:"severity"`
	Message  string          `json:"message"`
	// Node is set for issues attributable to a single page.
	Node string `json:"node,omitempty"`
}

// StageCount aggregates counts of outcomes for a stage.
type StageCount struct {
	Success  int `json:"success"`
	Warning  int `json:"warning"`
	Fatal    int `json:"fatal"`
	Canceled int `json:"canceled"`
}

// BuildReport captures what one build did and how it ended.
type BuildReport struct {
	SchemaVersion int
	BuildID       string
	Start         time.Time
	End           time.Time

	Errors   []error // fatal errors causing the build to abort (at most one)
	Warnings []error // non-fatal issues

	StageDurations  map[StageName]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	Issues          []ReportIssue

	// Pages is the number of nodes in the discovered tree.
	Pages int
	// RenderedPages counts pages the renderer completed successfully.
	RenderedPages int
	// FailedPages lists node paths whose page could not be produced, in
	// document order.
	FailedPages []string
	// AssetsCopied counts files seeded into the output area.
	AssetsCopied int
	// Renderer names the renderer implementation used.
	Renderer string
	// Fingerprint identifies the rendered inputs (tree, content, settings).
	Fingerprint string
	// Revision is the content source revision, when the source is a
	// git repository.
	Revision string
	// OutputDir is where pages were written.
	OutputDir string

	Outcome BuildOutcome
}

func newBuildReport(buildID string) *BuildReport {
	return &BuildReport{
		SchemaVersion:   1,
		BuildID:         buildID,
		Start:           time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

// AddIssue appends a structured issue and mirrors err into Errors or
// Warnings based on severity. err may be nil for informational issues.
func (r *BuildReport) AddIssue(code ReportIssueCode, stage StageName, severity IssueSeverity, msg, node string, err error) {
	r.Issues = append(r.Issues, ReportIssue{Code: code, Stage: stage, Severity: severity, Message: msg, Node: node})
	if err == nil {
		return
	}
	switch severity {
	case SeverityError:
		r.Errors = append(r.Errors, err)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, err)
	}
}

// recordStageResult updates StageCounts and emits the stage result metric.
func (r *BuildReport) recordStageResult(stage StageName, res StageResult, recorder metrics.Recorder) {
	sc := r.StageCounts[stage]
	switch res {
	case StageResultSuccess:
		sc.Success++
	case StageResultWarning:
		sc.Warning++
	case StageResultFatal:
		sc.Fatal++
	case StageResultCanceled:
		sc.Canceled++
	}
	r.StageCounts[stage] = sc
	if recorder != nil {
		recorder.IncStageResult(string(stage), metrics.ResultLabel(res))
	}
}

func (r *BuildReport) finish() { r.End = time.Now() }

// deriveOutcome sets Outcome from the recorded errors, warnings, and page
// failures. A build with failed pages produced incomplete output and is
// therefore failed, even though every stage ran.
func (r *BuildReport) deriveOutcome() {
	for _, e := range r.Errors {
		if se, ok := e.(*StageError); ok && se.Kind == StageErrorCanceled {
			r.Outcome = OutcomeCanceled
			return
		}
	}
	switch {
	case len(r.Errors) > 0 || len(r.FailedPages) > 0:
		r.Outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Duration is the wall time of the build.
func (r *BuildReport) Duration() time.Duration { return r.End.Sub(r.Start) }

// Summary returns a human-readable single-line summary.
func (r *BuildReport) Summary() string {
	return fmt.Sprintf("pages=%d rendered=%d failed=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.Pages, r.RenderedPages, len(r.FailedPages), r.Duration().Truncate(time.Millisecond),
		len(r.Errors), len(r.Warnings), r.Outcome)
}

// Persist writes the report as JSON to path, atomically via a temporary
// file and rename.
func (r *BuildReport) Persist(path string) error {
	if r.End.IsZero() {
		r.finish()
		r.deriveOutcome()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}
	b, err := json.MarshalIndent(r.Serializable(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename report json: %w", err)
	}
	return nil
}

// Serializable returns a JSON-friendly copy with errors as strings and
// durations in milliseconds.
func (r *BuildReport) Serializable() *BuildReportSerializable {
	s := &BuildReportSerializable{
		SchemaVersion:    r.SchemaVersion,
		BuildID:          r.BuildID,
		Start:            r.Start,
		End:              r.End,
		DurationMS:       r.Duration().Milliseconds(),
		Errors:           make([]string, len(r.Errors)),
		Warnings:         make([]string, len(r.Warnings)),
		StageDurationsMS: make(map[string]int64, len(r.StageDurations)),
		StageErrorKinds:  make(map[string]string, len(r.StageErrorKinds)),
		StageCounts:      make(map[string]StageCount, len(r.StageCounts)),
		Issues:           r.Issues,
		Pages:            r.Pages,
		RenderedPages:    r.RenderedPages,
		FailedPages:      r.FailedPages,
		AssetsCopied:     r.AssetsCopied,
		Renderer:         r.Renderer,
		Fingerprint:      r.Fingerprint,
		Revision:         r.Revision,
		OutputDir:        r.OutputDir,
		Outcome:          string(r.Outcome),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	for k, v := range r.StageDurations {
		s.StageDurationsMS[string(k)] = v.Milliseconds()
	}
	for k, v := range r.StageErrorKinds {
		s.StageErrorKinds[string(k)] = string(v)
	}
	for k, v := range r.StageCounts {
		s.StageCounts[string(k)] = v
	}
	if s.Issues == nil {
		s.Issues = []ReportIssue{}
	}
	return s
}

// BuildReportSerializable mirrors BuildReport for JSON output.
type BuildReportSerializable struct {
	SchemaVersion    int                   `json:"schema_version"`
	BuildID          string                `json:"build_id"`
	Start            time.Time             `json:"start"`
	End              time.Time             `json:"end"`
	DurationMS       int64                 `json:"duration_ms"`
	Errors           []string              `json:"errors"`
	Warnings         []string              `json:"warnings"`
	StageDurationsMS map[string]int64      `json:"stage_durations_ms"`
	StageErrorKinds  map[string]string     `json:"stage_error_kinds"`
	StageCounts      map[string]StageCount `json:"stage_counts"`
	Issues           []ReportIssue         `json:"issues"`
	Pages            int                   `json:"pages"`
	RenderedPages    int                   `json:"rendered_pages"`
	FailedPages      []string              `json:"failed_pages,omitempty"`
	AssetsCopied     int                   `json:"assets_copied"`
	Renderer         string                `json:"renderer,omitempty"`
	Fingerprint      string                `json:"fingerprint,omitempty"`
	Revision         string                `json:"revision,omitempty"`
	OutputDir        string                `json:"output_dir"`
	Outcome          string                `json:"outcome"`
}
