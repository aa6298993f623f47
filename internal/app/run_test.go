package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scholarpipe/indexer/internal/changes"
	"github.com/scholarpipe/indexer/internal/config"
	"github.com/scholarpipe/indexer/internal/db"
	"github.com/scholarpipe/indexer/internal/record"
)

// staticSource serves one journal with one issue of two articles plus a
// mutable in-press list.
type staticSource struct {
	inPress []record.Payload
}

func (s *staticSource) JournalMetadata(_ context.Context, journalID int64, _ string) (record.Payload, error) {
	return record.Payload{
		"id":         journalID,
		"attributes": map[string]any{"title": "Applied Results"},
	}, nil
}

func (s *staticSource) PublicationYears(_ context.Context, _ int64, _ string) ([]int, error) {
	return []int{2024}, nil
}

func (s *staticSource) IssuesForYear(_ context.Context, _ int64, _ string, _ int) ([]record.Payload, error) {
	return []record.Payload{{
		"id":         int64(501),
		"attributes": map[string]any{"title": "Issue 1"},
	}}, nil
}

func (s *staticSource) ArticlesForIssue(_ context.Context, _ int64, _ string) ([]record.Payload, error) {
	return []record.Payload{
		{"id": int64(7001), "attributes": map[string]any{"title": "A", "date": "2024-01-01"}},
		{"id": int64(7002), "attributes": map[string]any{"title": "B", "date": "2024-02-01"}},
	}, nil
}

func (s *staticSource) InPressArticles(_ context.Context, _ int64, _ string) ([]record.Payload, error) {
	return s.inPress, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	base := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Catalog.Dir = filepath.Join(base, "catalogs")
	cfg.Store.Dir = filepath.Join(base, "data")
	cfg.Changes.StateDir = filepath.Join(base, "push_state")
	cfg.Source.LibraryID = "lib-1"
	require.NoError(t, os.MkdirAll(cfg.Catalog.Dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Catalog.Dir, "medicine.csv"),
		[]byte("id,title,issn,area\n9,Applied Results,1111-2222,medicine\n"), 0o644))
	return cfg
}

func fetchOne(t *testing.T, dbPath, query string) []any {
	t.Helper()
	store, err := db.Open(dbPath, db.Options{})
	require.NoError(t, err)
	defer store.Close()
	writer := db.NewWriter(store)
	writer.Start()
	defer writer.Close()
	row, err := db.NewLocalClient(writer).FetchOne(context.Background(), query)
	require.NoError(t, err)
	return row
}

func TestRunFullCrawl(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	application := NewWithSource(cfg, zap.NewNop(), &staticSource{})
	require.NoError(t, application.Run(context.Background(), RunOptions{}))

	dbPath := filepath.Join(cfg.Store.Dir, "medicine.db")
	require.EqualValues(t, 2,
		fetchOne(t, dbPath, "SELECT COUNT(*) FROM articles")[0])
	require.Equal(t, "ready",
		fetchOne(t, dbPath, "SELECT status FROM listing_state WHERE id = 1")[0])
	require.Equal(t, "done",
		fetchOne(t, dbPath, "SELECT status FROM journal_state WHERE journal_id = 9")[0])

	// Full runs write no manifest.
	_, err := os.Stat(filepath.Join(cfg.Changes.StateDir, "medicine.changes.json"))
	require.True(t, os.IsNotExist(err))
}

func TestRunUpdateWritesManifest(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	src := &staticSource{}
	application := NewWithSource(cfg, zap.NewNop(), src)
	require.NoError(t, application.Run(context.Background(), RunOptions{}))

	// Unchanged update run: manifest exists but reports nothing.
	require.NoError(t, application.Run(context.Background(), RunOptions{Update: true, Resume: true}))
	manifestPath := filepath.Join(cfg.Changes.StateDir, "medicine.changes.json")
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	var manifest changes.Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	require.Empty(t, manifest.ChangedIssueKeys)
	require.Empty(t, manifest.NotifiableArticleIDs)
	require.Equal(t, "medicine.db", manifest.DBName)

	// A new in-press article appears; the next update run notifies it.
	src.inPress = []record.Payload{{
		"id":         int64(7003),
		"attributes": map[string]any{"title": "Early view", "inPress": true},
	}}
	require.NoError(t, application.Run(context.Background(), RunOptions{Update: true, Resume: true}))
	raw, err = os.ReadFile(manifestPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &manifest))
	require.Equal(t, []int64{9}, manifest.ChangedInPressJournalIDs)
	require.Equal(t, []int64{7003}, manifest.NotifiableArticleIDs)
}

func TestRunMissingCatalogFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	application := NewWithSource(cfg, zap.NewNop(), &staticSource{})
	err := application.Run(context.Background(), RunOptions{File: "absent.csv"})
	require.Error(t, err)
}
