// Package changes diffs article membership across an incremental run
// and writes the manifest the downstream notifier consumes.
package changes

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// IssueKey builds the stable "journal:issue" group key.
func IssueKey(journalID, issueID int64) string {
	return fmt.Sprintf("%d:%d", journalID, issueID)
}

// Snapshot is article membership at one point in time: per-issue sets
// for articles with an issue, per-journal sets for in-press articles.
type Snapshot struct {
	Issues  map[string]map[int64]bool
	InPress map[int64]map[int64]bool
}

// NewSnapshot builds an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Issues:  make(map[string]map[int64]bool),
		InPress: make(map[int64]map[int64]bool),
	}
}

func (s *Snapshot) addIssueArticle(journalID, issueID, articleID int64) {
	key := IssueKey(journalID, issueID)
	if s.Issues[key] == nil {
		s.Issues[key] = make(map[int64]bool)
	}
	s.Issues[key][articleID] = true
}

func (s *Snapshot) addInPressArticle(journalID, articleID int64) {
	if s.InPress[journalID] == nil {
		s.InPress[journalID] = make(map[int64]bool)
	}
	s.InPress[journalID][articleID] = true
}

// Collect scans the article table into a snapshot. It opens its own
// short-lived read connection so the scan never contends with the run's
// writer.
func Collect(ctx context.Context, dbPath string) (*Snapshot, error) {
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
		SELECT article_id, journal_id, issue_id, COALESCE(in_press, 0)
		FROM articles`)
	if err != nil {
		return nil, fmt.Errorf("snapshot scan: %w", err)
	}
	defer rows.Close()

	snapshot := NewSnapshot()
	for rows.Next() {
		var (
			articleID int64
			journalID int64
			issueID   *int64
			inPress   int64
		)
		if err := rows.Scan(&articleID, &journalID, &issueID, &inPress); err != nil {
			return nil, fmt.Errorf("snapshot row: %w", err)
		}
		if issueID != nil {
			snapshot.addIssueArticle(journalID, *issueID, articleID)
			continue
		}
		if inPress != 0 {
			snapshot.addInPressArticle(journalID, articleID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot rows: %w", err)
	}
	return snapshot, nil
}
