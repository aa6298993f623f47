// Package source defines the provider contract the crawl runs against
// and the REST adapter for the token-authenticated catalog API.
package source

import (
	"context"

	"github.com/scholarpipe/indexer/internal/record"
)

// Client is the provider contract. Implementations return nil (with a
// nil error) for ordinary "not found" or transient unavailability; the
// orchestrator treats missing data as skip-this-unit, never fatal.
// Errors are reserved for conditions worth logging with detail.
type Client interface {
	JournalMetadata(ctx context.Context, journalID int64, libraryID string) (record.Payload, error)
	PublicationYears(ctx context.Context, journalID int64, libraryID string) ([]int, error)
	IssuesForYear(ctx context.Context, journalID int64, libraryID string, year int) ([]record.Payload, error)
	ArticlesForIssue(ctx context.Context, issueID int64, libraryID string) ([]record.Payload, error)
	InPressArticles(ctx context.Context, journalID int64, libraryID string) ([]record.Payload, error)
}
