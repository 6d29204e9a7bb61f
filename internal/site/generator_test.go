package site

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/render"
)

func TestGenerator_Build_Scenario(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.Build.VerifyLinks = true

	report, err := NewGenerator(cfg, render.NewGoldmark()).Build(t.Context())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, report.Outcome, report.Issues)
	assert.Equal(t, 4, report.Pages)
	assert.Equal(t, 4, report.RenderedPages)
	assert.Equal(t, 2, report.AssetsCopied)
	assert.Equal(t, "goldmark", report.Renderer)
	assert.NotEmpty(t, report.BuildID)
	assert.NotEmpty(t, report.Fingerprint)
	assert.Empty(t, report.FailedPages)

	out := cfg.Output.Directory
	for _, p := range []string{"index.html", "0010/index.html", "0020/index.html", "0020/0010/index.html", "css/bootstrap.min.css", "js/bootstrap.bundle.min.js"} {
		assert.FileExists(t, filepath.Join(out, filepath.FromSlash(p)))
	}
	assert.NoFileExists(t, filepath.Join(out, "fonts", "icons.woff"))
	assert.NoFileExists(t, IncompleteMarkerPath(out))
	assert.FileExists(t, filepath.Join(cfg.Output.WorkDir, "0020", "0010", "template.html"))

	deep := readFile(t, filepath.Join(out, "0020", "0010", "index.html"))
	assert.Contains(t, deep, "<title>part1 - T</title>")
	assert.Contains(t, deep, `href="../../css/bootstrap.min.css"`)
	assert.Contains(t, deep, `href="../../0020/index.html"`)
	assert.Contains(t, deep, "<p>Steps.</p>")

	placeholder := readFile(t, filepath.Join(out, "0020", "index.html"))
	assert.Contains(t, placeholder, ">setup</h2>")
	assert.Contains(t, placeholder, `href="../0020/0010/index.html"`)

	for _, st := range []StageName{StageSource, StageDiscover, StageTemplates, StagePrepare, StageRender, StageVerify, StageFinalize} {
		assert.Equal(t, 1, report.StageCounts[st].Success, st)
	}
}

func TestGenerator_Build_Idempotent(t *testing.T) {
	cfg := scenarioConfig(t)
	g := NewGenerator(cfg, render.NewGoldmark())

	_, err := g.Build(t.Context())
	require.NoError(t, err)
	first := snapshot(t, cfg.Output.Directory)

	_, err = g.Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, cfg.Output.Directory))
}

func TestGenerator_Build_PlaceholderInput(t *testing.T) {
	cfg := scenarioConfig(t)
	fake := newFakeRenderer()

	_, err := NewGenerator(cfg, fake).Build(t.Context())
	require.NoError(t, err)

	require.Len(t, fake.jobs, 4)
	assert.Equal(t, map[string]string{
		"":      "% index\n\n## T\n",
		"/0020": "% index\n\n## setup\n",
	}, fake.inputs)
	for _, job := range fake.jobs {
		assert.NotEmpty(t, job.Template, job.Node)
		if job.Node == "/0010" {
			assert.Equal(t, filepath.Join(cfg.Source.Dir, "0010_intro", "index.md"), job.SourceFile)
		}
	}
}

func TestGenerator_Build_PartialFailure(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.Output.ReportFile = filepath.Join(t.TempDir(), "reports", "build-report.json")

	report, err := NewGenerator(cfg, newFakeRenderer("/0010", "/0020/0010")).Build(t.Context())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryRenderer))

	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, []string{"/0010", "/0020/0010"}, report.FailedPages)
	assert.Equal(t, 2, report.RenderedPages)
	assert.Equal(t, 1, report.StageCounts[StageRender].Warning)
	assert.Equal(t, 1, report.StageCounts[StageFinalize].Success)

	out := cfg.Output.Directory
	assert.FileExists(t, filepath.Join(out, "index.html"))
	assert.FileExists(t, filepath.Join(out, "0020", "index.html"))
	assert.NoFileExists(t, filepath.Join(out, "0010", "index.html"))
	assert.Equal(t, "/0010\n/0020/0010\n", readFile(t, IncompleteMarkerPath(out)))

	var persisted BuildReportSerializable
	require.NoError(t, json.Unmarshal([]byte(readFile(t, cfg.Output.ReportFile)), &persisted))
	assert.Equal(t, "failed", persisted.Outcome)
	assert.Equal(t, report.BuildID, persisted.BuildID)
	assert.Equal(t, []string{"/0010", "/0020/0010"}, persisted.FailedPages)
}

func TestGenerator_Build_StaleMarkerRemoved(t *testing.T) {
	cfg := scenarioConfig(t)
	_, err := NewGenerator(cfg, newFakeRenderer("/0010")).Build(t.Context())
	require.Error(t, err)
	require.FileExists(t, IncompleteMarkerPath(cfg.Output.Directory))

	_, err = NewGenerator(cfg, newFakeRenderer()).Build(t.Context())
	require.NoError(t, err)
	assert.NoFileExists(t, IncompleteMarkerPath(cfg.Output.Directory))
}

func TestGenerator_Build_TemplateTokenMissingBeforeOutput(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.Template.File = filepath.Join(t.TempDir(), "base.html")
	writeFile(t, cfg.Template.File, "<nav>{{.Nav}}</nav><a href=\"{{.RootPrefix}}index.html\">home</a>\n")

	report, err := NewGenerator(cfg, newFakeRenderer()).Build(t.Context())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryTemplate))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, 1, report.StageCounts[StageTemplates].Fatal)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueTemplate, report.Issues[0].Code)
	assert.NoDirExists(t, cfg.Output.Directory)
}

func TestGenerator_Build_MissingSource(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.Source.Dir = filepath.Join(t.TempDir(), "missing")

	report, err := NewGenerator(cfg, newFakeRenderer()).Build(t.Context())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategorySource))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDiscover, se.Stage)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, IssueMissingSource, report.Issues[0].Code)
	assert.Zero(t, report.StageCounts[StageRender])
}

func TestGenerator_Build_CollisionWarning(t *testing.T) {
	cfg := scenarioConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Source.Dir, "0010_extra"), 0o750))

	_, err := NewGenerator(cfg, newFakeRenderer()).Build(t.Context())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryNaming))

	cfg.Build.AllowCollisions = true
	report, err := NewGenerator(cfg, newFakeRenderer()).Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	assert.Equal(t, 1, report.StageCounts[StageDiscover].Warning)
	assert.Equal(t, IssueNamingCollision, report.Issues[0].Code)
}

func TestGenerator_Build_Canceled(t *testing.T) {
	cfg := scenarioConfig(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	report, err := NewGenerator(cfg, newFakeRenderer()).Build(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Equal(t, 1, report.StageCounts[StageSource].Canceled)
}

func TestGenerator_Build_MinimalVariantCopiesBundle(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.Site.Variant = config.VariantMinimal

	report, err := NewGenerator(cfg, render.NewGoldmark()).Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, report.AssetsCopied)
	assert.FileExists(t, filepath.Join(cfg.Output.Directory, "fonts", "icons.woff"))

	deep := readFile(t, filepath.Join(cfg.Output.Directory, "0020", "0010", "index.html"))
	assert.Contains(t, deep, `<a class="btn btn-outline-primary disabled" href="">&laquo; Previous</a>`)
	setup := readFile(t, filepath.Join(cfg.Output.Directory, "0020", "index.html"))
	assert.NotContains(t, setup, "<h2>この章の内容</h2>")
}

type fakeSource struct {
	revision string
	err      error
	calls    int
}

func (f *fakeSource) Sync(context.Context) (string, error) {
	f.calls++
	return f.revision, f.err
}

func TestGenerator_Build_ContentSource(t *testing.T) {
	cfg := scenarioConfig(t)
	src := &fakeSource{revision: "3f2c1ab"}

	report, err := NewGenerator(cfg, newFakeRenderer(), WithContentSource(src)).Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "3f2c1ab", report.Revision)

	src.err = perrors.New(perrors.CategorySource, perrors.SeverityFatal, "clone failed")
	report, err = NewGenerator(cfg, newFakeRenderer(), WithContentSource(src)).Build(t.Context())
	require.Error(t, err)
	assert.Equal(t, IssueSourceSync, report.Issues[0].Code)
}

type recordingObserver struct {
	started   []StageName
	completed map[StageName]StageResult
	report    *BuildReport
}

func (r *recordingObserver) OnStageStart(s StageName) { r.started = append(r.started, s) }
func (r *recordingObserver) OnStageComplete(s StageName, _ time.Duration, res StageResult) {
	r.completed[s] = res
}
func (r *recordingObserver) OnBuildComplete(rep *BuildReport) { r.report = rep }

func TestGenerator_Build_Observer(t *testing.T) {
	cfg := scenarioConfig(t)
	obs := &recordingObserver{completed: map[StageName]StageResult{}}

	report, err := NewGenerator(cfg, newFakeRenderer("/0010"), WithObserver(obs)).Build(t.Context())
	require.Error(t, err)
	assert.Equal(t, []StageName{StageSource, StageDiscover, StageTemplates, StagePrepare, StageRender, StageVerify, StageFinalize}, obs.started)
	assert.Equal(t, StageResultWarning, obs.completed[StageRender])
	assert.Same(t, report, obs.report)
}

func TestGenerator_Fingerprint(t *testing.T) {
	cfg := scenarioConfig(t)
	g := NewGenerator(cfg, newFakeRenderer())

	before, err := g.Fingerprint(t.Context())
	require.NoError(t, err)
	assert.NoDirExists(t, cfg.Output.Directory)

	report, err := g.Build(t.Context())
	require.NoError(t, err)
	assert.Equal(t, before, report.Fingerprint)

	writeFile(t, filepath.Join(cfg.Source.Dir, "0010_intro", "index.md"), "# Changed\n")
	after, err := g.Fingerprint(t.Context())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}
