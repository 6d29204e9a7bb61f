package source

import (
	"context"

	"git.home.luguber.info/inful/pagetree/internal/retry"
)

// Syncer is anything that brings a content directory up to date.
type Syncer interface {
	Sync(ctx context.Context) (string, error)
}

// Retrying retries transient sync failures of Source under Policy.
type Retrying struct {
	Source Syncer
	Policy retry.Policy
}

// Sync implements Syncer.
func (r Retrying) Sync(ctx context.Context) (string, error) {
	return retry.Value(ctx, r.Policy, r.Source.Sync)
}
