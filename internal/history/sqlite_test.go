package history

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagetree/internal/site"
)

func openMemory(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(id, outcome, fp string) Record {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Record{
		BuildID:     id,
		Start:       start,
		End:         start.Add(1500 * time.Millisecond),
		Outcome:     outcome,
		Pages:       4,
		Rendered:    4,
		Fingerprint: fp,
		Renderer:    "goldmark",
		Report:      []byte(`{}`),
	}
}

func TestSQLiteStore_AppendAndRecent(t *testing.T) {
	store := openMemory(t)
	ctx := t.Context()

	for i := range 3 {
		require.NoError(t, store.Append(ctx, record(fmt.Sprintf("b-%d", i), "success", "fp")))
	}

	recs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b-2", recs[0].BuildID)
	assert.Equal(t, "b-1", recs[1].BuildID)
	assert.Equal(t, 1500*time.Millisecond, recs[0].Duration())
	assert.Equal(t, "goldmark", recs[0].Renderer)

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_DuplicateBuildID(t *testing.T) {
	store := openMemory(t)
	require.NoError(t, store.Append(t.Context(), record("b-1", "success", "")))
	assert.Error(t, store.Append(t.Context(), record("b-1", "success", "")))
}

func TestSQLiteStore_LastSuccessful(t *testing.T) {
	store := openMemory(t)
	ctx := t.Context()

	_, err := store.LastSuccessful(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Append(ctx, record("b-1", "success", "one")))
	require.NoError(t, store.Append(ctx, record("b-2", "warning", "two")))
	require.NoError(t, store.Append(ctx, record("b-3", "failed", "three")))
	require.NoError(t, store.Append(ctx, record("b-4", "canceled", "four")))

	last, err := store.LastSuccessful(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b-2", last.BuildID)
	assert.Equal(t, "two", last.Fingerprint)
	assert.True(t, last.Succeeded())
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := openMemory(t)
	ctx := t.Context()
	for i := range 5 {
		require.NoError(t, store.Append(ctx, record(fmt.Sprintf("b-%d", i), "success", "")))
	}

	removed, err := store.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	recs, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b-4", recs[0].BuildID)

	removed, err = store.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSQLiteStore_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(t.Context(), record("b-1", "success", "fp")))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	recs, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fp", recs[0].Fingerprint)
}

func TestFromReport(t *testing.T) {
	start := time.Now().Add(-time.Second)
	report := &site.BuildReport{
		SchemaVersion: 1,
		BuildID:       "b-9",
		Start:         start,
		End:           start.Add(time.Second),
		Pages:         3,
		RenderedPages: 2,
		FailedPages:   []string{"/0010"},
		Renderer:      "pandoc",
		Fingerprint:   "abc",
		Revision:      "3f2c1ab",
		Outcome:       site.OutcomeFailed,
	}

	rec, err := FromReport(report)
	require.NoError(t, err)
	assert.Equal(t, "b-9", rec.BuildID)
	assert.Equal(t, "failed", rec.Outcome)
	assert.Equal(t, 1, rec.Failed)
	assert.Equal(t, 2, rec.Rendered)
	assert.False(t, rec.Succeeded())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Report, &payload))
	assert.Equal(t, "3f2c1ab", payload["revision"])
}

func TestObserver_RecordsAndPrunes(t *testing.T) {
	store := openMemory(t)
	obs := &Observer{Store: store, Keep: 2}

	for i := range 3 {
		obs.OnBuildComplete(&site.BuildReport{
			BuildID: fmt.Sprintf("b-%d", i),
			Start:   time.Now(),
			End:     time.Now(),
			Outcome: site.OutcomeSuccess,
		})
	}

	recs, err := store.Recent(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b-2", recs[0].BuildID)

	var _ site.BuildObserver = obs
}
