package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchUsesTokenizer(t *testing.T) {
	t.Parallel()

	plain := buildArticleSearchSQL("")
	porter := buildArticleSearchSQL("porter unicode61")

	require.True(t, searchUsesTokenizer(plain, ""))
	require.False(t, searchUsesTokenizer(plain, "porter unicode61"))
	require.True(t, searchUsesTokenizer(porter, "porter unicode61"))
	require.False(t, searchUsesTokenizer(porter, ""))
	require.False(t, searchUsesTokenizer(porter, "trigram"))
}

func TestEnsureArticleSearchRebuildsOnTokenizerChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	store, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.retry.Execute(ctx,
		"INSERT INTO journals (journal_id, library_id, title) VALUES (1, 'lib', 'J')"))
	require.NoError(t, store.retry.Execute(ctx, `
		INSERT INTO articles (article_id, journal_id, title)
		VALUES (10, 1, 'Porterized stemming results')`))
	require.NoError(t, store.RebuildArticleSearch(ctx))
	require.NoError(t, store.Close())

	// Reopen with a different tokenizer; the index must be rebuilt with
	// the existing article rows intact.
	store, err = Open(path, Options{Tokenizer: "porter unicode61"})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Init(ctx))

	ddl, err := store.articleSearchSQL(ctx)
	require.NoError(t, err)
	require.Contains(t, ddl, "porter unicode61")

	var count int
	require.NoError(t, store.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM article_search WHERE article_search MATCH 'stemming'"))
	require.Equal(t, 1, count)
}

func TestEnsureArticleSearchIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	before, err := store.articleSearchSQL(ctx)
	require.NoError(t, err)
	require.NoError(t, store.EnsureArticleSearch(ctx))
	after, err := store.articleSearchSQL(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestBuildUpsert(t *testing.T) {
	t.Parallel()

	got := buildUpsert("widgets", []string{"id", "name", "size"})
	require.Equal(t,
		"INSERT INTO widgets (id, name, size) VALUES (?, ?, ?) "+
			"ON CONFLICT(id) DO UPDATE SET name=excluded.name, size=excluded.size",
		got)
}
