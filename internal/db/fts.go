package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const articleSearchRebuild = `
	INSERT OR REPLACE INTO article_search (
		rowid, article_id, title, abstract, doi, authors, journal_title
	)
	SELECT
		a.article_id,
		a.article_id,
		COALESCE(a.title, ''),
		COALESCE(a.abstract, ''),
		COALESCE(a.doi, ''),
		COALESCE(a.authors, ''),
		COALESCE(j.title, '')
	FROM articles a
	LEFT JOIN journals j ON j.journal_id = a.journal_id`

func buildArticleSearchSQL(tokenizer string) string {
	tokenizerClause := ""
	if tokenizer != "" {
		tokenizerClause = fmt.Sprintf(", tokenize = '%s'", tokenizer)
	}
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS article_search
		USING fts5(
			article_id UNINDEXED,
			title,
			abstract,
			doi,
			authors,
			journal_title%s
		);`, tokenizerClause)
}

func (s *Store) articleSearchSQL(ctx context.Context) (string, error) {
	var ddl string
	err := s.db.GetContext(ctx, &ddl,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'article_search'")
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read article_search sql: %w", err)
	}
	return ddl, nil
}

func searchUsesTokenizer(ddl, tokenizer string) bool {
	if tokenizer == "" {
		return !strings.Contains(ddl, "tokenize")
	}
	return strings.Contains(ddl, fmt.Sprintf("tokenize = '%s'", tokenizer))
}

// EnsureArticleSearch creates the FTS table on first use, or rebuilds it
// from the articles table when the configured tokenizer differs from the
// one the existing table was created with. The rebuild is all-or-nothing:
// drop, recreate, repopulate in one pass.
func (s *Store) EnsureArticleSearch(ctx context.Context) error {
	existing, err := s.articleSearchSQL(ctx)
	if err != nil {
		return err
	}
	if existing == "" {
		return s.retry.Execute(ctx, buildArticleSearchSQL(s.tokenizer))
	}
	if searchUsesTokenizer(existing, s.tokenizer) {
		return nil
	}
	if err := s.retry.Execute(ctx, "DROP TABLE IF EXISTS article_search"); err != nil {
		return fmt.Errorf("drop article_search: %w", err)
	}
	if err := s.retry.Execute(ctx, buildArticleSearchSQL(s.tokenizer)); err != nil {
		return fmt.Errorf("recreate article_search: %w", err)
	}
	return s.RebuildArticleSearch(ctx)
}

// RebuildArticleSearch repopulates every search row from the articles
// table. Callers must not read the search index mid-rebuild.
func (s *Store) RebuildArticleSearch(ctx context.Context) error {
	if err := s.retry.Execute(ctx, articleSearchRebuild); err != nil {
		return fmt.Errorf("rebuild article_search: %w", err)
	}
	return nil
}
