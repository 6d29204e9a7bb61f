// Package assets seeds the shared static files (the Bootstrap bundle) into a
// freshly reset output area.
package assets

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

var errNotDir = errors.New("not a directory")

// DefaultBundle is the conventional bundle directory name.
const DefaultBundle = "bootstrap-5.3.0-dist"

// DefaultFiles are the bundle files pages reference, relative to the bundle
// root. They land at the same relative paths in the output.
var DefaultFiles = []string{
	"css/bootstrap.min.css",
	"js/bootstrap.bundle.min.js",
}

// Mode selects what is copied.
type Mode int

const (
	// ModeFiles copies only the listed files.
	ModeFiles Mode = iota
	// ModeBundle copies the whole bundle directory.
	ModeBundle
)

// Seeder copies assets from Source into an output area.
type Seeder struct {
	Source string
	Files  []string
	Mode   Mode
}

// Seed copies the configured assets into outputArea and returns the number
// of files written. An empty Source seeds nothing.
func (s Seeder) Seed(outputArea string) (int, error) {
	if s.Source == "" {
		slog.Debug("No asset source configured; skipping asset seeding")
		return 0, nil
	}
	info, err := os.Stat(s.Source)
	if err != nil {
		return 0, perrors.FileSystem("stat", s.Source, err)
	}
	if !info.IsDir() {
		return 0, perrors.FileSystem("stat", s.Source, errNotDir)
	}

	var n int
	if s.Mode == ModeBundle {
		n, err = copyDir(s.Source, outputArea)
	} else {
		n, err = s.copyFiles(outputArea)
	}
	if err != nil {
		return n, err
	}
	slog.Debug("Seeded static assets", logfields.Source(s.Source), logfields.Output(outputArea), logfields.Count(n))
	return n, nil
}

func (s Seeder) copyFiles(outputArea string) (int, error) {
	files := s.Files
	if len(files) == 0 {
		files = DefaultFiles
	}
	for i, rel := range files {
		src := filepath.Join(s.Source, filepath.FromSlash(rel))
		dst := filepath.Join(outputArea, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return i, perrors.FileSystem("mkdir", filepath.Dir(dst), err)
		}
		if err := copyFile(src, dst); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

// copyDir recursively copies the contents of src into dst.
func copyDir(src, dst string) (int, error) {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return 0, perrors.FileSystem("mkdir", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, perrors.FileSystem("readdir", src, err)
	}
	total := 0
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			n, err := copyDir(srcPath, dstPath)
			total += n
			if err != nil {
				return total, err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return total, err
		}
		total++
	}
	return total, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return perrors.FileSystem("open", src, err)
	}
	defer func() {
		_ = in.Close()
	}()

	// O_EXCL: an existing destination means the output area was not reset.
	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) // #nosec G302 - published site content
	if err != nil {
		return perrors.FileSystem("create", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return perrors.FileSystem("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return perrors.FileSystem("close", dst, err)
	}
	return nil
}
