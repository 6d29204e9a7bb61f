package site

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/render"
)

// fakeRenderer writes a small page per job and fails for selected nodes.
type fakeRenderer struct {
	mu     sync.Mutex
	fail   map[string]bool
	jobs   []render.Job
	inputs map[string]string
}

func newFakeRenderer(failing ...string) *fakeRenderer {
	f := &fakeRenderer{fail: map[string]bool{}, inputs: map[string]string{}}
	for _, p := range failing {
		f.fail[p] = true
	}
	return f
}

func (f *fakeRenderer) Name() string              { return "fake" }
func (f *fakeRenderer) RequiredMarkers() []string { return []string{"$body$"} }
func (f *fakeRenderer) Escape(s string) string    { return s }

func (f *fakeRenderer) Render(_ context.Context, job render.Job) error {
	var input string
	if job.Input != nil {
		b, err := io.ReadAll(job.Input)
		if err != nil {
			return err
		}
		input = string(b)
	}
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	if job.Input != nil {
		f.inputs[job.Node] = input
	}
	failing := f.fail[job.Node]
	f.mu.Unlock()

	if failing {
		return perrors.ExternalTool("fake", job.Node, errors.New("exit status 1"))
	}
	return os.WriteFile(job.Output, []byte("page "+job.Node+"\n"), 0o600)
}

// scenarioConfig lays out the reference content tree, an asset bundle, and a
// configuration writing into a fresh temporary directory.
func scenarioConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	content := filepath.Join(base, "contents")
	writeFile(t, filepath.Join(content, "0010_intro", "index.md"), "% intro\n\n# Intro\n\nWelcome.\n")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "0020_setup"), 0o750))
	writeFile(t, filepath.Join(content, "0020_setup", "0010_part1", "index.md"), "# Part 1\n\nSteps.\n")

	bundle := filepath.Join(base, "bootstrap-5.3.0-dist")
	writeFile(t, filepath.Join(bundle, "css", "bootstrap.min.css"), "/* css */\n")
	writeFile(t, filepath.Join(bundle, "js", "bootstrap.bundle.min.js"), "/* js */\n")
	writeFile(t, filepath.Join(bundle, "fonts", "icons.woff"), "woff")

	cfg := config.Default()
	cfg.Site.Title = "T"
	cfg.Source.Dir = content
	cfg.Assets.Source = bundle
	cfg.Output.Directory = filepath.Join(base, "htmlOutput")
	cfg.Output.WorkDir = filepath.Join(base, "templateTmp")
	cfg.Build.Concurrency = 2
	return cfg
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// snapshot maps every file below root (slash-relative) to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		files[filepath.ToSlash(rel)] = readFile(t, p)
		return nil
	})
	require.NoError(t, err)
	return files
}
