package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/scholarpipe/indexer/internal/ids"
	"github.com/scholarpipe/indexer/internal/metrics"
	"github.com/scholarpipe/indexer/internal/record"
)

const listingBatchSize = 500

func journalArgs(j record.Journal) []any {
	return []any{
		j.JournalID, j.LibraryID, j.Title, j.ISSN, j.EISSN, j.ScimagoRank,
		j.CoverURL, j.Available, j.TocApproved, j.HasArticles,
	}
}

func metaArgs(m record.JournalMeta) []any {
	return []any{m.JournalID, m.SourceCSV, m.Area, m.CSVTitle, m.CSVISSN, m.CSVLibrary}
}

func issueArgs(i record.Issue) []any {
	return []any{
		i.IssueID, i.JournalID, i.PublicationYear, i.Title, i.Volume, i.Number,
		i.Date, i.IsValidIssue, i.Suppressed, i.Embargoed, i.WithinSubscription,
	}
}

func articleArgs(a record.Article) []any {
	return []any{
		a.ArticleID, a.JournalID, a.IssueID, a.SyncID, a.Title, a.Date,
		a.Authors, a.StartPage, a.EndPage, a.Abstract, a.DOI, a.PMID,
		a.ILLURL, a.OpenURLLink, a.Permalink, a.Suppressed, a.InPress,
		a.OpenAccess, a.PlatformID, a.RetractionDOI, a.RetractionDate,
		a.WithinLibraryHoldings, a.ContentLocation, a.FullTextFile,
	}
}

// UpsertJournal inserts or updates one journal row.
func UpsertJournal(ctx context.Context, c Client, journal record.Journal) error {
	if err := c.Execute(ctx, journalUpsert, journalArgs(journal)...); err != nil {
		return fmt.Errorf("upsert journal %d: %w", journal.JournalID, err)
	}
	metrics.ObserveUpsert("journals", 1)
	return nil
}

// UpsertMeta inserts or updates one journal meta row.
func UpsertMeta(ctx context.Context, c Client, meta record.JournalMeta) error {
	if err := c.Execute(ctx, metaUpsert, metaArgs(meta)...); err != nil {
		return fmt.Errorf("upsert meta %d: %w", meta.JournalID, err)
	}
	metrics.ObserveUpsert("journal_meta", 1)
	return nil
}

// UpsertIssues inserts or updates issue rows.
func UpsertIssues(ctx context.Context, c Client, issues []record.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, issueArgs(issue))
	}
	if err := c.ExecuteMany(ctx, issueUpsert, rows); err != nil {
		return fmt.Errorf("upsert issues: %w", err)
	}
	metrics.ObserveUpsert("issues", len(issues))
	return nil
}

// UpsertArticles inserts or updates article rows. Re-crawling is
// idempotent by construction: every non-key column is overwritten.
func UpsertArticles(ctx context.Context, c Client, articles []record.Article) error {
	if len(articles) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(articles))
	for _, article := range articles {
		rows = append(rows, articleArgs(article))
	}
	if err := c.ExecuteMany(ctx, articleUpsert, rows); err != nil {
		return fmt.Errorf("upsert articles: %w", err)
	}
	metrics.ObserveUpsert("articles", len(articles))
	return nil
}

const articleSearchUpsert = `
	INSERT OR REPLACE INTO article_search (
		rowid, article_id, title, abstract, doi, authors, journal_title
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

func textOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// UpsertArticleSearch refreshes the FTS rows for the given articles.
func UpsertArticleSearch(ctx context.Context, c Client, articles []record.Article, journalTitle string) error {
	if len(articles) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, []any{
			a.ArticleID, a.ArticleID,
			textOrEmpty(a.Title), textOrEmpty(a.Abstract), textOrEmpty(a.DOI),
			textOrEmpty(a.Authors), journalTitle,
		})
	}
	if err := c.ExecuteMany(ctx, articleSearchUpsert, rows); err != nil {
		return fmt.Errorf("upsert article_search: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func buildListingUpsert(whereSQL string) string {
	assignments := make([]string, 0, len(articleListingColumns)-1)
	for _, col := range articleListingColumns[1:] {
		assignments = append(assignments, fmt.Sprintf("%s=excluded.%s", col, col))
	}
	return fmt.Sprintf(`
	INSERT INTO article_listing (%s)
	SELECT
		a.article_id,
		a.journal_id,
		a.issue_id,
		i.publication_year,
		a.date,
		a.open_access,
		a.in_press,
		a.suppressed,
		a.within_library_holdings,
		a.doi,
		a.pmid,
		m.area
	FROM articles a
	LEFT JOIN issues i ON i.issue_id = a.issue_id
	LEFT JOIN journal_meta m ON m.journal_id = a.journal_id
	%s
	ON CONFLICT(article_id) DO UPDATE SET %s`,
		strings.Join(articleListingColumns, ", "),
		whereSQL,
		strings.Join(assignments, ", "),
	)
}

func refreshListing(ctx context.Context, c Client, column string, idList []int64) error {
	if len(idList) == 0 {
		return nil
	}
	for _, batch := range record.Chunk(idList, listingBatchSize) {
		where := fmt.Sprintf("WHERE a.%s IN (%s)", column, placeholders(len(batch)))
		args := make([]any, 0, len(batch))
		for _, id := range batch {
			args = append(args, id)
		}
		if err := c.Execute(ctx, buildListingUpsert(where), args...); err != nil {
			return fmt.Errorf("refresh listing by %s: %w", column, err)
		}
	}
	metrics.ObserveUpsert("article_listing", len(idList))
	return nil
}

// RefreshListingForArticles rebuilds the listing rows for the given
// article ids from the source-of-truth tables.
func RefreshListingForArticles(ctx context.Context, c Client, articleIDs []int64) error {
	return refreshListing(ctx, c, "article_id", articleIDs)
}

// RefreshListingForIssues rebuilds the listing rows for every article in
// the given issues.
func RefreshListingForIssues(ctx context.Context, c Client, issueIDs []int64) error {
	return refreshListing(ctx, c, "issue_id", issueIDs)
}

// IssueIDsWithArticles returns the issue ids that already have at least
// one stored article for a journal year. Update runs skip re-fetching
// those issues.
func IssueIDsWithArticles(ctx context.Context, c Client, journalID int64, year int) (map[int64]bool, error) {
	rows, err := c.FetchAll(ctx, `
		SELECT DISTINCT a.issue_id
		FROM articles a
		JOIN issues i ON i.issue_id = a.issue_id
		WHERE i.journal_id = ? AND i.publication_year = ?`,
		journalID, year)
	if err != nil {
		return nil, fmt.Errorf("issues with articles: %w", err)
	}
	result := make(map[int64]bool, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if id, ok := ids.ParseInt64(row[0]); ok {
			result[id] = true
		}
	}
	return result, nil
}
