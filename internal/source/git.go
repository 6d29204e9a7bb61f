// Package source keeps the content tree in sync with a git repository.
package source

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

// Git clones a repository into a content directory and fast-forwards it on
// later syncs.
type Git struct {
	dir  string
	repo config.RepositoryConfig
}

// NewGit returns a source that keeps dir a working copy of repo.
func NewGit(dir string, repo config.RepositoryConfig) *Git {
	return &Git{dir: dir, repo: repo}
}

// Dir is the working copy location.
func (g *Git) Dir() string { return g.dir }

// Sync clones or updates the working copy and returns the checked out
// commit hash.
func (g *Git) Sync(ctx context.Context) (string, error) {
	if _, err := os.Stat(filepath.Join(g.dir, ".git")); err == nil {
		slog.Debug("Updating content repository", logfields.URL(g.repo.URL), logfields.Path(g.dir))
		return g.update(ctx)
	}
	slog.Debug("Cloning content repository", logfields.URL(g.repo.URL), logfields.Path(g.dir))
	return g.clone(ctx)
}

func (g *Git) clone(ctx context.Context) (string, error) {
	auth, err := g.auth()
	if err != nil {
		return "", err
	}
	if err := ensureEmptyDir(g.dir); err != nil {
		return "", err
	}

	opts := &git.CloneOptions{
		URL:   g.repo.URL,
		Auth:  auth,
		Depth: g.repo.Depth,
	}
	if g.repo.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.repo.Branch)
		opts.SingleBranch = true
	}

	repository, err := git.PlainCloneContext(ctx, g.dir, false, opts)
	if err != nil {
		return "", syncError("clone", g.repo.URL, err)
	}
	rev, err := head(repository)
	if err != nil {
		return "", err
	}
	slog.Info("Content repository cloned", logfields.URL(g.repo.URL), slog.String("commit", short(rev)))
	return rev, nil
}

func (g *Git) update(ctx context.Context) (string, error) {
	repository, err := git.PlainOpen(g.dir)
	if err != nil {
		return "", syncError("open", g.dir, err)
	}
	worktree, err := repository.Worktree()
	if err != nil {
		return "", syncError("open worktree", g.dir, err)
	}
	auth, err := g.auth()
	if err != nil {
		return "", err
	}

	opts := &git.PullOptions{RemoteName: "origin", Auth: auth, Depth: g.repo.Depth}
	if g.repo.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.repo.Branch)
		opts.SingleBranch = true
	}

	err = worktree.PullContext(ctx, opts)
	switch {
	case stdErrors.Is(err, git.NoErrAlreadyUpToDate):
		slog.Debug("Content repository already up to date", logfields.URL(g.repo.URL))
	case err != nil:
		return "", syncError("pull", g.repo.URL, err)
	}

	rev, err := head(repository)
	if err != nil {
		return "", err
	}
	slog.Info("Content repository synced", logfields.URL(g.repo.URL), slog.String("commit", short(rev)))
	return rev, nil
}

// auth picks token basic auth for HTTPS remotes or a key file for SSH.
func (g *Git) auth() (transport.AuthMethod, error) {
	switch {
	case g.repo.Token != "":
		// GitHub/GitLab accept any username with a token password.
		return &http.BasicAuth{Username: "token", Password: g.repo.Token}, nil
	case g.repo.KeyPath != "":
		keys, err := ssh.NewPublicKeysFromFile("git", g.repo.KeyPath, "")
		if err != nil {
			return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "failed to load SSH key").
				WithContext("path", g.repo.KeyPath)
		}
		return keys, nil
	default:
		return nil, nil
	}
}

func head(repository *git.Repository) (string, error) {
	ref, err := repository.Head()
	if err != nil {
		return "", perrors.Wrap(err, perrors.CategorySource, perrors.SeverityFatal, "failed to resolve HEAD")
	}
	return ref.Hash().String(), nil
}

// ensureEmptyDir refuses to clone over existing files that are not a
// working copy.
func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return perrors.FileSystem("read", dir, err)
	case len(entries) > 0:
		return perrors.New(perrors.CategorySource, perrors.SeverityFatal,
			"content directory exists and is not a git working copy").WithContext("path", dir)
	}
	return nil
}

func syncError(op, target string, err error) error {
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return perrors.WrapRetryable(err, perrors.CategorySource, perrors.SeverityError,
		fmt.Sprintf("git %s failed", op)).WithContext("target", target)
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
