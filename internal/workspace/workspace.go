package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
)

// Manager owns one work area directory.
type Manager struct {
	baseDir    string
	dir        string
	persistent bool
}

// NewManager returns a manager for ephemeral work areas under baseDir (the
// system temp directory when empty).
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewPersistentManager returns a manager for the fixed work area dir.
func NewPersistentManager(dir string) *Manager {
	return &Manager{baseDir: filepath.Dir(dir), dir: dir, persistent: true}
}

// Persistent reports whether the work area outlives Cleanup.
func (m *Manager) Persistent() bool { return m.persistent }

// Create makes the work area exist and returns its path. An ephemeral
// manager gets a new unique directory on every call.
func (m *Manager) Create() (string, error) {
	if m.persistent {
		if err := os.MkdirAll(m.dir, 0o750); err != nil {
			return "", perrors.FileSystem("mkdir", m.dir, err)
		}
		slog.Debug("Using persistent work area", logfields.Path(m.dir))
		return m.dir, nil
	}

	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return "", perrors.FileSystem("mkdir", m.baseDir, err)
	}
	dir, err := os.MkdirTemp(m.baseDir, "pagetree-"+time.Now().Format("20060102-150405")+"-*")
	if err != nil {
		return "", perrors.FileSystem("mkdir", m.baseDir, err)
	}
	m.dir = dir
	slog.Debug("Created work area", logfields.Path(dir))
	return dir, nil
}

// Path is the current work area, empty before Create for ephemeral managers.
func (m *Manager) Path() string { return m.dir }

// Cleanup removes an ephemeral work area. Persistent work areas are kept.
func (m *Manager) Cleanup() error {
	if m.dir == "" || m.persistent {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return perrors.FileSystem("remove", m.dir, err)
	}
	slog.Debug("Removed work area", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
