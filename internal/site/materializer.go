package site

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pagetree/internal/assets"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/metrics"
	"git.home.luguber.info/inful/pagetree/internal/render"
	"git.home.luguber.info/inful/pagetree/internal/tree"
)

// PageFile is the file name of every generated page.
const PageFile = "index.html"

var errParentFailed = errors.New("parent directory was not created")

// NodeFailure attributes a page that could not be produced to its node.
type NodeFailure struct {
	Path string
	Err  error
}

// Materializer writes one output page per node by handing each node's
// resolved template and content to a Renderer.
type Materializer struct {
	renderer    render.Renderer
	seeder      assets.Seeder
	indexFile   string
	concurrency int
	recorder    metrics.Recorder
	outputArea  string
}

// MaterializerOptions configure NewMaterializer.
type MaterializerOptions struct {
	Seeder    assets.Seeder
	IndexFile string
	// Concurrency bounds simultaneous renderer invocations; values below one
	// render sequentially.
	Concurrency int
	Recorder    metrics.Recorder
}

// NewMaterializer returns a Materializer rendering with r.
func NewMaterializer(r render.Renderer, opts MaterializerOptions) *Materializer {
	if opts.IndexFile == "" {
		opts.IndexFile = tree.DefaultIndexFile
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Materializer{
		renderer:    r,
		seeder:      opts.Seeder,
		indexFile:   opts.IndexFile,
		concurrency: opts.Concurrency,
		recorder:    opts.Recorder,
	}
}

// Prepare resets outputArea and seeds the shared assets into it. It must
// complete before any node is emitted; it returns the number of asset files
// copied.
func (m *Materializer) Prepare(outputArea string) (int, error) {
	if err := os.RemoveAll(outputArea); err != nil {
		return 0, perrors.FileSystem("remove", outputArea, err)
	}
	if err := os.MkdirAll(outputArea, 0o750); err != nil {
		return 0, perrors.FileSystem("mkdir", outputArea, err)
	}
	m.outputArea = outputArea
	n, err := m.seeder.Seed(outputArea)
	if err != nil {
		return n, err
	}
	slog.Debug("Output area prepared", logfields.Output(outputArea), logfields.Count(n))
	return n, nil
}

// EmitRoot prepares outputArea and emits every node of t.
func (m *Materializer) EmitRoot(ctx context.Context, t *tree.Tree, outputArea string) ([]NodeFailure, error) {
	if _, err := m.Prepare(outputArea); err != nil {
		return nil, err
	}
	return m.EmitSubtree(ctx, t, t.Root())
}

// EmitSubtree emits n and all its descendants. Directories are created
// sequentially in document order so a parent always exists before its
// children; pages are then rendered concurrently. A node whose directory
// cannot be created fails together with its whole subtree. Per-node
// failures never stop siblings and are returned in document order. The
// error is non-nil only when emission could not start or ctx ended.
func (m *Materializer) EmitSubtree(ctx context.Context, t *tree.Tree, n *tree.Node) ([]NodeFailure, error) {
	if m.outputArea == "" {
		return nil, perrors.InternalError("node emitted before output area was prepared", nil).
			WithContext("node", n.Path)
	}

	var (
		order   []*tree.Node
		failed  = map[string]error{}
		blocked = map[tree.NodeID]bool{}
		pending []*tree.Node
	)
	_ = t.Walk(n, func(c *tree.Node) error {
		order = append(order, c)
		if c.Parent != tree.NoNode && blocked[c.Parent] {
			blocked[c.ID] = true
			failed[c.Path] = perrors.FileSystem("mkdir", m.pageDir(c), errParentFailed)
			return nil
		}
		if err := m.mkdir(c); err != nil {
			blocked[c.ID] = true
			failed[c.Path] = err
			return nil
		}
		pending = append(pending, c)
		return nil
	})

	var mu sync.Mutex
	m.recorder.SetRenderConcurrency(m.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, c := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := m.render(gctx, c); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				failed[c.Path] = err
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failures := make([]NodeFailure, 0, len(failed))
	for _, c := range order {
		if err, ok := failed[c.Path]; ok {
			failures = append(failures, NodeFailure{Path: c.Path, Err: err})
		}
	}
	return failures, nil
}

// EmitNode creates n's output directory and renders its page. The parent
// directory must already exist.
func (m *Materializer) EmitNode(ctx context.Context, n *tree.Node) error {
	if m.outputArea == "" {
		return perrors.InternalError("node emitted before output area was prepared", nil).
			WithContext("node", n.Path)
	}
	if err := m.mkdir(n); err != nil {
		return err
	}
	return m.render(ctx, n)
}

// PagePath is the output file of n.
func (m *Materializer) PagePath(n *tree.Node) string {
	return filepath.Join(m.pageDir(n), PageFile)
}

func (m *Materializer) pageDir(n *tree.Node) string {
	return filepath.Join(m.outputArea, filepath.FromSlash(strings.TrimPrefix(n.Path, "/")))
}

func (m *Materializer) mkdir(n *tree.Node) error {
	dir := m.pageDir(n)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return perrors.FileSystem("mkdir", dir, err)
	}
	return nil
}

// render runs the renderer for n. Nodes without content are rendered from
// an in-memory placeholder document holding only their title.
func (m *Materializer) render(ctx context.Context, n *tree.Node) error {
	job := render.Job{
		Node:     n.Path,
		Template: n.ResolvedTemplate,
		Output:   m.PagePath(n),
	}
	if n.HasContent {
		job.SourceFile = filepath.Join(n.Source, m.indexFile)
	} else {
		job.Input = render.Placeholder(n.Title)
	}

	start := time.Now()
	err := m.renderer.Render(ctx, job)
	m.recorder.ObservePageRender(m.renderer.Name(), time.Since(start), err == nil)
	if err != nil {
		slog.Warn("Page render failed", logfields.Node(n.Path), logfields.Error(err))
		return err
	}
	slog.Debug("Page rendered", logfields.Node(n.Path), logfields.Output(job.Output), logfields.Since(start))
	return nil
}
