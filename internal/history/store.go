// Package history persists one row per build so operators can list past
// builds and the daemon can skip builds whose source has not changed.
package history

import (
	"context"
	"time"

	"git.home.luguber.info/inful/pagetree/internal/site"
)

// Record is one stored build.
type Record struct {
	ID          int64
	BuildID     string
	Start       time.Time
	End         time.Time
	Outcome     string
	Pages       int
	Rendered    int
	Failed      int
	Fingerprint string
	Revision    string
	Renderer    string
	// Report is the serialized build report.
	Report []byte
}

// Duration is the wall time of the build.
func (r Record) Duration() time.Duration { return r.End.Sub(r.Start) }

// Succeeded reports whether the build produced complete output.
func (r Record) Succeeded() bool {
	return r.Outcome == string(site.OutcomeSuccess) || r.Outcome == string(site.OutcomeWarning)
}

// Store defines the interface for persisting and retrieving build records.
type Store interface {
	// Append stores a finished build.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// LastSuccessful returns the newest record that Succeeded, or
	// ErrNotFound.
	LastSuccessful(ctx context.Context) (Record, error)

	// Prune keeps the newest keep records and returns how many were removed.
	Prune(ctx context.Context, keep int) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
