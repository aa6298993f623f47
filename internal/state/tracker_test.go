package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scholarpipe/indexer/internal/db"
)

func newTestTracker(t *testing.T) (*Tracker, db.Client) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"), db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(context.Background()))

	writer := db.NewWriter(store)
	writer.Start()
	t.Cleanup(writer.Close)
	client := db.NewLocalClient(writer)

	tracker := New(client)
	tracker.now = func() time.Time {
		return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return tracker, client
}

func TestJournalCompletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, client := newTestTracker(t)

	done, err := tracker.IsJournalComplete(ctx, 42)
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, tracker.MarkJournalDone(ctx, 42))
	require.NoError(t, client.Commit(ctx))

	done, err = tracker.IsJournalComplete(ctx, 42)
	require.NoError(t, err)
	require.True(t, done)

	// Marking again is an upsert, not an error.
	require.NoError(t, tracker.MarkJournalDone(ctx, 42))
}

func TestCompletedYears(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, client := newTestTracker(t)

	years, err := tracker.CompletedYears(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, years)

	require.NoError(t, tracker.MarkYearDone(ctx, 7, 2023))
	require.NoError(t, tracker.MarkYearDone(ctx, 7, 2024))
	require.NoError(t, tracker.MarkYearDone(ctx, 8, 2024))
	require.NoError(t, client.Commit(ctx))

	years, err = tracker.CompletedYears(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, map[int]bool{2023: true, 2024: true}, years)
}

func TestMarkListingReady(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, client := newTestTracker(t)

	require.NoError(t, tracker.MarkListingReady(ctx))
	require.NoError(t, client.Commit(ctx))

	row, err := client.FetchOne(ctx,
		"SELECT status, updated_at FROM listing_state WHERE id = 1")
	require.NoError(t, err)
	require.Equal(t, "ready", row[0])
	require.Equal(t, "2026-05-01T12:00:00Z", row[1])

	// Re-marking keeps the single row.
	require.NoError(t, tracker.MarkListingReady(ctx))
	require.NoError(t, client.Commit(ctx))
	count, err := client.FetchOne(ctx, "SELECT COUNT(*) FROM listing_state")
	require.NoError(t, err)
	require.EqualValues(t, 1, count[0])
}
