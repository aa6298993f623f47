// Package state tracks crawl progress so interrupted runs can resume
// without re-fetching completed work.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarpipe/indexer/internal/db"
	"github.com/scholarpipe/indexer/internal/ids"
)

const (
	statusDone  = "done"
	statusReady = "ready"
)

// Tracker reads and writes completion markers through the run's client.
// Done markers are monotonic: nothing here ever un-marks a journal or
// year.
type Tracker struct {
	client db.Client
	now    func() time.Time
}

// New builds a Tracker over the given client.
func New(client db.Client) *Tracker {
	return &Tracker{client: client, now: time.Now}
}

func (t *Tracker) timestamp() string {
	return t.now().UTC().Format(time.RFC3339)
}

// IsJournalComplete reports whether a prior run finished this journal.
func (t *Tracker) IsJournalComplete(ctx context.Context, journalID int64) (bool, error) {
	row, err := t.client.FetchOne(ctx,
		"SELECT status FROM journal_state WHERE journal_id = ?", journalID)
	if err != nil {
		return false, fmt.Errorf("journal state %d: %w", journalID, err)
	}
	return len(row) > 0 && row[0] == statusDone, nil
}

// CompletedYears returns the years already fully crawled for a journal.
func (t *Tracker) CompletedYears(ctx context.Context, journalID int64) (map[int]bool, error) {
	rows, err := t.client.FetchAll(ctx,
		"SELECT year FROM journal_year_state WHERE journal_id = ? AND status = ?",
		journalID, statusDone)
	if err != nil {
		return nil, fmt.Errorf("completed years %d: %w", journalID, err)
	}
	years := make(map[int]bool, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if year, ok := ids.ParseInt64(row[0]); ok {
			years[int(year)] = true
		}
	}
	return years, nil
}

// MarkYearDone records that a journal year's issues and articles are
// fully stored. Callers commit afterwards; the marker must never be
// visible before the data it covers.
func (t *Tracker) MarkYearDone(ctx context.Context, journalID int64, year int) error {
	err := t.client.Execute(ctx, `
		INSERT INTO journal_year_state (journal_id, year, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(journal_id, year) DO UPDATE SET
			status=excluded.status, updated_at=excluded.updated_at`,
		journalID, year, statusDone, t.timestamp())
	if err != nil {
		return fmt.Errorf("mark year done %d/%d: %w", journalID, year, err)
	}
	return nil
}

// MarkJournalDone records that a journal's full crawl finished.
func (t *Tracker) MarkJournalDone(ctx context.Context, journalID int64) error {
	err := t.client.Execute(ctx, `
		INSERT INTO journal_state (journal_id, status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(journal_id) DO UPDATE SET
			status=excluded.status, updated_at=excluded.updated_at`,
		journalID, statusDone, t.timestamp())
	if err != nil {
		return fmt.Errorf("mark journal done %d: %w", journalID, err)
	}
	return nil
}

// MarkListingReady flips the global gate that lets readers trust the
// listing table. Only a full crawl sets it; update runs leave it alone.
func (t *Tracker) MarkListingReady(ctx context.Context) error {
	err := t.client.Execute(ctx, `
		INSERT INTO listing_state (id, status, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, updated_at=excluded.updated_at`,
		statusReady, t.timestamp())
	if err != nil {
		return fmt.Errorf("mark listing ready: %w", err)
	}
	return nil
}
