package history

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
)

// ErrNotFound is returned by LastSuccessful when no build qualifies.
var ErrNotFound = stdErrors.New("no successful build recorded")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the database at dbPath.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, perrors.FileSystem("mkdir", filepath.Dir(dbPath), err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryRuntime, perrors.SeverityFatal, "open history database").
			WithContext("path", dbPath)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, perrors.Wrap(err, perrors.CategoryRuntime, perrors.SeverityFatal, "initialize history schema")
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		pages INTEGER NOT NULL,
		rendered INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		fingerprint TEXT,
		revision TEXT,
		renderer TEXT,
		report BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_builds_outcome ON builds(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a finished build.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (build_id, started_at, finished_at, outcome, pages, rendered, failed, fingerprint, revision, renderer, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BuildID, rec.Start.UnixMilli(), rec.End.UnixMilli(), rec.Outcome,
		rec.Pages, rec.Rendered, rec.Failed, rec.Fingerprint, rec.Revision, rec.Renderer, rec.Report,
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, build_id, started_at, finished_at, outcome, pages, rendered, failed,
	fingerprint, revision, renderer, report FROM builds`

// Recent returns up to limit records, newest first. A limit <= 0 returns
// every record.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LastSuccessful returns the newest record with a success or warning
// outcome.
func (s *SQLiteStore) LastSuccessful(ctx context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE outcome IN ('success', 'warning') ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return Record{}, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// Prune deletes everything but the newest keep records. keep <= 0 is a
// no-op.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM builds WHERE id NOT IN (SELECT id FROM builds ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune builds: %w", err)
	}
	return res.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var (
			r                 Record
			started, finished int64
			fp, rev, renderer sql.NullString
		)
		err := rows.Scan(&r.ID, &r.BuildID, &started, &finished, &r.Outcome, &r.Pages, &r.Rendered, &r.Failed,
			&fp, &rev, &renderer, &r.Report)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		r.Start = time.UnixMilli(started)
		r.End = time.UnixMilli(finished)
		r.Fingerprint, r.Revision, r.Renderer = fp.String, rev.String, renderer.String
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return recs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
