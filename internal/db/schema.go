package db

import (
	"context"
	"fmt"
	"strings"
)

var journalColumns = []string{
	"journal_id",
	"library_id",
	"title",
	"issn",
	"eissn",
	"scimago_rank",
	"cover_url",
	"available",
	"toc_data_approved_and_live",
	"has_articles",
}

var metaColumns = []string{
	"journal_id",
	"source_csv",
	"area",
	"csv_title",
	"csv_issn",
	"csv_library",
}

var issueColumns = []string{
	"issue_id",
	"journal_id",
	"publication_year",
	"title",
	"volume",
	"number",
	"date",
	"is_valid_issue",
	"suppressed",
	"embargoed",
	"within_subscription",
}

var articleColumns = []string{
	"article_id",
	"journal_id",
	"issue_id",
	"sync_id",
	"title",
	"date",
	"authors",
	"start_page",
	"end_page",
	"abstract",
	"doi",
	"pmid",
	"ill_url",
	"link_resolver_openurl_link",
	"permalink",
	"suppressed",
	"in_press",
	"open_access",
	"platform_id",
	"retraction_doi",
	"retraction_date",
	"within_library_holdings",
	"content_location",
	"full_text_file",
}

var articleListingColumns = []string{
	"article_id",
	"journal_id",
	"issue_id",
	"publication_year",
	"date",
	"open_access",
	"in_press",
	"suppressed",
	"within_library_holdings",
	"doi",
	"pmid",
	"area",
}

// buildUpsert renders an insert-or-update-all-columns statement keyed on
// the first column.
func buildUpsert(table string, columns []string) string {
	assignments := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		assignments = append(assignments, fmt.Sprintf("%s=excluded.%s", col, col))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
		columns[0],
		strings.Join(assignments, ", "),
	)
}

var (
	journalUpsert = buildUpsert("journals", journalColumns)
	metaUpsert    = buildUpsert("journal_meta", metaColumns)
	issueUpsert   = buildUpsert("issues", issueColumns)
	articleUpsert = buildUpsert("articles", articleColumns)
)

var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS journals (
		journal_id INTEGER PRIMARY KEY,
		library_id TEXT NOT NULL,
		title TEXT,
		issn TEXT,
		eissn TEXT,
		scimago_rank REAL,
		cover_url TEXT,
		available INTEGER,
		toc_data_approved_and_live INTEGER,
		has_articles INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS journal_meta (
		journal_id INTEGER PRIMARY KEY,
		source_csv TEXT NOT NULL,
		area TEXT,
		csv_title TEXT,
		csv_issn TEXT,
		csv_library TEXT,
		FOREIGN KEY (journal_id) REFERENCES journals(journal_id)
			ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS issues (
		issue_id INTEGER PRIMARY KEY,
		journal_id INTEGER NOT NULL,
		publication_year INTEGER,
		title TEXT,
		volume TEXT,
		number TEXT,
		date TEXT,
		is_valid_issue INTEGER,
		suppressed INTEGER,
		embargoed INTEGER,
		within_subscription INTEGER,
		FOREIGN KEY (journal_id) REFERENCES journals(journal_id)
			ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS articles (
		article_id INTEGER PRIMARY KEY,
		journal_id INTEGER NOT NULL,
		issue_id INTEGER,
		sync_id INTEGER,
		title TEXT,
		date TEXT,
		authors TEXT,
		start_page TEXT,
		end_page TEXT,
		abstract TEXT,
		doi TEXT,
		pmid TEXT,
		ill_url TEXT,
		link_resolver_openurl_link TEXT,
		permalink TEXT,
		suppressed INTEGER,
		in_press INTEGER,
		open_access INTEGER,
		platform_id TEXT,
		retraction_doi TEXT,
		retraction_date TEXT,
		within_library_holdings INTEGER,
		content_location TEXT,
		full_text_file TEXT,
		FOREIGN KEY (journal_id) REFERENCES journals(journal_id)
			ON DELETE CASCADE,
		FOREIGN KEY (issue_id) REFERENCES issues(issue_id)
			ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS article_listing (
		article_id INTEGER PRIMARY KEY,
		journal_id INTEGER NOT NULL,
		issue_id INTEGER,
		publication_year INTEGER,
		date TEXT,
		open_access INTEGER,
		in_press INTEGER,
		suppressed INTEGER,
		within_library_holdings INTEGER,
		doi TEXT,
		pmid TEXT,
		area TEXT,
		FOREIGN KEY (journal_id) REFERENCES journals(journal_id)
			ON DELETE CASCADE,
		FOREIGN KEY (issue_id) REFERENCES issues(issue_id)
			ON DELETE SET NULL
	);`,
	`CREATE TABLE IF NOT EXISTS listing_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		status TEXT,
		updated_at TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS journal_year_state (
		journal_id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (journal_id, year)
	);`,
	`CREATE TABLE IF NOT EXISTS journal_state (
		journal_id INTEGER PRIMARY KEY,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
}

var indexDDL = []string{
	"CREATE INDEX IF NOT EXISTS idx_journals_issn ON journals(issn);",
	"CREATE INDEX IF NOT EXISTS idx_journals_library_id ON journals(library_id);",
	"CREATE INDEX IF NOT EXISTS idx_journals_available ON journals(available);",
	"CREATE INDEX IF NOT EXISTS idx_journal_meta_area ON journal_meta(area);",
	"CREATE INDEX IF NOT EXISTS idx_issues_journal_year ON issues(journal_id, publication_year);",
	"CREATE INDEX IF NOT EXISTS idx_issues_publication_year ON issues(publication_year);",
	"CREATE INDEX IF NOT EXISTS idx_articles_journal ON articles(journal_id);",
	"CREATE INDEX IF NOT EXISTS idx_articles_issue ON articles(issue_id);",
	"CREATE INDEX IF NOT EXISTS idx_articles_date ON articles(date);",
	"CREATE INDEX IF NOT EXISTS idx_articles_date_id ON articles(date, article_id);",
	"CREATE INDEX IF NOT EXISTS idx_articles_journal_date_id ON articles(journal_id, date, article_id);",
	"CREATE INDEX IF NOT EXISTS idx_articles_issue_date_id ON articles(issue_id, date, article_id);",
	"CREATE INDEX IF NOT EXISTS idx_articles_doi ON articles(doi);",
	"CREATE INDEX IF NOT EXISTS idx_articles_pmid ON articles(pmid);",
	"CREATE INDEX IF NOT EXISTS idx_articles_open_access ON articles(open_access);",
	"CREATE INDEX IF NOT EXISTS idx_articles_in_press ON articles(in_press);",
	"CREATE INDEX IF NOT EXISTS idx_articles_suppressed ON articles(suppressed);",
	"CREATE INDEX IF NOT EXISTS idx_article_listing_date_id ON article_listing(date, article_id);",
	"CREATE INDEX IF NOT EXISTS idx_article_listing_area ON article_listing(area);",
	"CREATE INDEX IF NOT EXISTS idx_article_listing_publication_year ON article_listing(publication_year);",
	"CREATE INDEX IF NOT EXISTS idx_article_listing_journal ON article_listing(journal_id);",
	"CREATE INDEX IF NOT EXISTS idx_article_listing_issue ON article_listing(issue_id);",
}

// Init creates the schema idempotently. Runs in autocommit mode; PRAGMA
// journal_mode cannot execute inside a transaction.
func (s *Store) Init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", s.busyMS),
	}
	for _, pragma := range pragmas {
		if err := s.retry.Execute(ctx, pragma); err != nil {
			return fmt.Errorf("init pragma: %w", err)
		}
	}
	for _, ddl := range tableDDL {
		if err := s.retry.Execute(ctx, ddl); err != nil {
			return fmt.Errorf("init table: %w", err)
		}
	}
	if err := s.EnsureArticleSearch(ctx); err != nil {
		return fmt.Errorf("init article search: %w", err)
	}
	for _, ddl := range indexDDL {
		if err := s.retry.Execute(ctx, ddl); err != nil {
			return fmt.Errorf("init index: %w", err)
		}
	}
	return nil
}
