package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarpipe/indexer/internal/record"
)

func ptr[T any](v T) *T { return &v }

func seedJournal(t *testing.T, ctx context.Context, c Client) {
	t.Helper()
	require.NoError(t, UpsertJournal(ctx, c, record.Journal{
		JournalID: 10,
		LibraryID: "lib-1",
		Title:     ptr("Journal of Fixtures"),
		ISSN:      ptr("1234-5678"),
	}))
	require.NoError(t, UpsertMeta(ctx, c, record.JournalMeta{
		JournalID: 10,
		SourceCSV: "medicine.csv",
		Area:      ptr("medicine"),
	}))
}

func TestUpsertJournalOverwritesOnConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := startLocalClient(t, openTestStore(t))
	seedJournal(t, ctx, client)

	require.NoError(t, UpsertJournal(ctx, client, record.Journal{
		JournalID: 10,
		LibraryID: "lib-1",
		Title:     ptr("Journal of Fixtures, 2nd Series"),
	}))
	require.NoError(t, client.Commit(ctx))

	row, err := client.FetchOne(ctx,
		"SELECT title, issn FROM journals WHERE journal_id = 10")
	require.NoError(t, err)
	require.Equal(t, "Journal of Fixtures, 2nd Series", row[0])
	// Every non-key column is overwritten, absent values included.
	require.Nil(t, row[1])
}

func TestUpsertIssuesAndArticles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := startLocalClient(t, openTestStore(t))
	seedJournal(t, ctx, client)

	issues := []record.Issue{
		{IssueID: 100, JournalID: 10, PublicationYear: ptr(int64(2024)), Volume: ptr("12")},
		{IssueID: 101, JournalID: 10, PublicationYear: ptr(int64(2024)), Volume: ptr("13")},
	}
	require.NoError(t, UpsertIssues(ctx, client, issues))

	articles := []record.Article{
		{ArticleID: 1000, JournalID: 10, IssueID: ptr(int64(100)),
			Title: ptr("On Stable Writes"), Date: ptr("2024-03-01")},
		{ArticleID: 1001, JournalID: 10, Title: ptr("Ahead of Print"),
			InPress: ptr(true)},
	}
	require.NoError(t, UpsertArticles(ctx, client, articles))
	require.NoError(t, client.Commit(ctx))

	row, err := client.FetchOne(ctx,
		"SELECT issue_id FROM articles WHERE article_id = 1001")
	require.NoError(t, err)
	require.Nil(t, row[0])

	have, err := IssueIDsWithArticles(ctx, client, 10, 2024)
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{100: true}, have)
}

func TestRefreshListingForIssues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := startLocalClient(t, openTestStore(t))
	seedJournal(t, ctx, client)

	require.NoError(t, UpsertIssues(ctx, client, []record.Issue{
		{IssueID: 200, JournalID: 10, PublicationYear: ptr(int64(2023))},
	}))
	require.NoError(t, UpsertArticles(ctx, client, []record.Article{
		{ArticleID: 2000, JournalID: 10, IssueID: ptr(int64(200)),
			Date: ptr("2023-07-15"), OpenAccess: ptr(true), DOI: ptr("10.1/x")},
	}))
	require.NoError(t, RefreshListingForIssues(ctx, client, []int64{200}))
	require.NoError(t, client.Commit(ctx))

	row, err := client.FetchOne(ctx, `
		SELECT publication_year, area, doi FROM article_listing
		WHERE article_id = 2000`)
	require.NoError(t, err)
	require.EqualValues(t, 2023, row[0])
	require.Equal(t, "medicine", row[1])
	require.Equal(t, "10.1/x", row[2])
}

func TestRefreshListingForArticlesUpdatesExistingRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := startLocalClient(t, openTestStore(t))
	seedJournal(t, ctx, client)

	require.NoError(t, UpsertArticles(ctx, client, []record.Article{
		{ArticleID: 3000, JournalID: 10, InPress: ptr(true)},
	}))
	require.NoError(t, RefreshListingForArticles(ctx, client, []int64{3000}))

	// Article moves from in-press into an issue; the listing follows.
	require.NoError(t, UpsertIssues(ctx, client, []record.Issue{
		{IssueID: 300, JournalID: 10, PublicationYear: ptr(int64(2025))},
	}))
	require.NoError(t, UpsertArticles(ctx, client, []record.Article{
		{ArticleID: 3000, JournalID: 10, IssueID: ptr(int64(300)),
			InPress: ptr(false), Date: ptr("2025-01-10")},
	}))
	require.NoError(t, RefreshListingForArticles(ctx, client, []int64{3000}))
	require.NoError(t, client.Commit(ctx))

	row, err := client.FetchOne(ctx, `
		SELECT issue_id, in_press, publication_year FROM article_listing
		WHERE article_id = 3000`)
	require.NoError(t, err)
	require.EqualValues(t, 300, row[0])
	require.EqualValues(t, 0, row[1])
	require.EqualValues(t, 2025, row[2])
}

func TestUpsertArticleSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := startLocalClient(t, openTestStore(t))
	seedJournal(t, ctx, client)

	require.NoError(t, UpsertArticles(ctx, client, []record.Article{
		{ArticleID: 4000, JournalID: 10, Title: ptr("Searchable Findings"),
			Abstract: ptr("A study of full text search.")},
	}))
	require.NoError(t, UpsertArticleSearch(ctx, client, []record.Article{
		{ArticleID: 4000, JournalID: 10, Title: ptr("Searchable Findings"),
			Abstract: ptr("A study of full text search.")},
	}, "Journal of Fixtures"))
	require.NoError(t, client.Commit(ctx))

	row, err := client.FetchOne(ctx, `
		SELECT article_id FROM article_search WHERE article_search MATCH 'searchable'`)
	require.NoError(t, err)
	require.EqualValues(t, 4000, row[0])
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	require.Equal(t, "?", placeholders(1))
	require.Equal(t, "?, ?, ?", placeholders(3))
}
