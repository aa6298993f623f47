package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// notifiableWindow is the trailing window within which a dated addition
// is worth alerting subscribers about. Older additions are backfill.
const notifiableWindow = 7 * 24 * time.Hour

const classifyBatchSize = 900

// Manifest is the per-run change artifact. Immutable once written; the
// next run's manifest supersedes it.
type Manifest struct {
	RunID                     string   `json:"run_id"`
	GeneratedAt               string   `json:"generated_at"`
	DBName                    string   `json:"db_name"`
	DBPath                    string   `json:"db_path"`
	ChangedIssueKeys          []string `json:"changed_issue_keys"`
	ChangedInPressJournalIDs  []int64  `json:"changed_inpress_journal_ids"`
	NotifiableArticleIDs      []int64  `json:"notifiable_article_ids"`
	BackfillIssueKeys         []string `json:"backfill_issue_keys"`
	BackfillInPressJournalIDs []int64  `json:"backfill_inpress_journal_ids"`
	BackfillArticleIDs        []int64  `json:"backfill_article_ids"`
	Summary                   Summary  `json:"summary"`
}

// Summary carries the per-group diff detail.
type Summary struct {
	RawChangedIssueCount      int             `json:"raw_changed_issue_count"`
	RawChangedInPressCount    int             `json:"raw_changed_inpress_count"`
	ChangedIssueCount         int             `json:"changed_issue_count"`
	ChangedInPressCount       int             `json:"changed_inpress_count"`
	AddedArticleIDs           []int64         `json:"added_article_ids"`
	AddedArticleCount         int             `json:"added_article_count"`
	RemovedArticleIDs         []int64         `json:"removed_article_ids"`
	RemovedArticleCount       int             `json:"removed_article_count"`
	BackfillArticleIDs        []int64         `json:"backfill_article_ids"`
	BackfillArticleCount      int             `json:"backfill_article_count"`
	BackfillIssueKeys         []string        `json:"backfill_issue_keys"`
	BackfillInPressJournalIDs []int64         `json:"backfill_inpress_journal_ids"`
	Issues                    []IssueDetail   `json:"issues"`
	InPress                   []InPressDetail `json:"inpress"`
}

// Detector snapshots and diffs one database across an incremental run.
type Detector struct {
	dbPath string
	log    *zap.Logger
	now    func() time.Time
}

// NewDetector builds a Detector for the database at dbPath.
func NewDetector(dbPath string, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{dbPath: dbPath, log: log, now: time.Now}
}

// Snapshot captures current article membership.
func (d *Detector) Snapshot(ctx context.Context) (*Snapshot, error) {
	return Collect(ctx, d.dbPath)
}

// parseArticleDate reads the loosely formatted article date column.
func parseArticleDate(value string) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// classify splits added article ids into notifiable (in-press, or dated
// within the trailing window) and backfill (everything else).
func (d *Detector) classify(ctx context.Context, added []int64) (map[int64]bool, map[int64]bool, error) {
	notifiable := make(map[int64]bool)
	backfill := make(map[int64]bool, len(added))
	for _, id := range added {
		backfill[id] = true
	}
	if len(added) == 0 {
		return notifiable, backfill, nil
	}

	conn, err := sqlx.Open("sqlite", d.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open classify connection: %w", err)
	}
	defer conn.Close()

	windowStart := d.now().UTC().Add(-notifiableWindow)
	for start := 0; start < len(added); start += classifyBatchSize {
		end := min(start+classifyBatchSize, len(added))
		batch := added[start:end]

		query, args, err := sqlx.In(`
			SELECT article_id, COALESCE(date, ''), COALESCE(in_press, 0)
			FROM articles WHERE article_id IN (?)`, batch)
		if err != nil {
			return nil, nil, fmt.Errorf("classify query: %w", err)
		}
		rows, err := conn.QueryContext(ctx, conn.Rebind(query), args...)
		if err != nil {
			return nil, nil, fmt.Errorf("classify scan: %w", err)
		}
		for rows.Next() {
			var (
				articleID int64
				date      string
				inPress   int64
			)
			if err := rows.Scan(&articleID, &date, &inPress); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("classify row: %w", err)
			}
			if inPress != 0 {
				notifiable[articleID] = true
				delete(backfill, articleID)
				continue
			}
			if parsed, ok := parseArticleDate(date); ok && !parsed.Before(windowStart) {
				notifiable[articleID] = true
				delete(backfill, articleID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("classify rows: %w", err)
		}
		rows.Close()
	}
	return notifiable, backfill, nil
}

func filterIDs(candidates []int64, keep map[int64]bool) []int64 {
	out := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

// BuildManifest diffs two snapshots, classifies additions, and annotates
// the per-group details. A changed group only stays in the top-level
// changed lists when it has at least one notifiable addition; groups
// whose additions are all backfill move to the backfill lists.
func (d *Detector) BuildManifest(ctx context.Context, before, after *Snapshot) (*Manifest, error) {
	diff := Compare(before, after)

	notifiable, backfill, err := d.classify(ctx, diff.Added)
	if err != nil {
		return nil, err
	}

	notifiableIssueKeys := make(map[string]bool)
	backfillIssueKeys := make(map[string]bool)
	for i := range diff.IssueDetails {
		detail := &diff.IssueDetails[i]
		detail.NotifiableAdded = filterIDs(detail.Added, notifiable)
		detail.BackfillAdded = filterIDs(detail.Added, backfill)
		if len(detail.NotifiableAdded) > 0 {
			notifiableIssueKeys[detail.IssueKey] = true
		}
		if len(detail.BackfillAdded) > 0 {
			backfillIssueKeys[detail.IssueKey] = true
		}
	}

	notifiableInPress := make(map[int64]bool)
	backfillInPress := make(map[int64]bool)
	for i := range diff.InPressDetails {
		detail := &diff.InPressDetails[i]
		detail.NotifiableAdded = filterIDs(detail.Added, notifiable)
		detail.BackfillAdded = filterIDs(detail.Added, backfill)
		if len(detail.NotifiableAdded) > 0 {
			notifiableInPress[detail.JournalID] = true
		}
		if len(detail.BackfillAdded) > 0 {
			backfillInPress[detail.JournalID] = true
		}
	}

	changedIssueKeys := make([]string, 0, len(diff.ChangedIssueKeys))
	backfillKeys := make([]string, 0)
	for _, key := range diff.ChangedIssueKeys {
		if notifiableIssueKeys[key] {
			changedIssueKeys = append(changedIssueKeys, key)
		}
		if backfillIssueKeys[key] {
			backfillKeys = append(backfillKeys, key)
		}
	}
	changedInPress := make([]int64, 0, len(diff.ChangedInPressIDs))
	backfillInPressIDs := make([]int64, 0)
	for _, id := range diff.ChangedInPressIDs {
		if notifiableInPress[id] {
			changedInPress = append(changedInPress, id)
		}
		if backfillInPress[id] {
			backfillInPressIDs = append(backfillInPressIDs, id)
		}
	}

	now := d.now().UTC().Truncate(time.Second).Format(time.RFC3339)
	return &Manifest{
		RunID:                     now,
		GeneratedAt:               now,
		DBName:                    filepath.Base(d.dbPath),
		DBPath:                    d.dbPath,
		ChangedIssueKeys:          changedIssueKeys,
		ChangedInPressJournalIDs:  changedInPress,
		NotifiableArticleIDs:      sortedIDs(notifiable),
		BackfillIssueKeys:         backfillKeys,
		BackfillInPressJournalIDs: backfillInPressIDs,
		BackfillArticleIDs:        sortedIDs(backfill),
		Summary: Summary{
			RawChangedIssueCount:      len(diff.ChangedIssueKeys),
			RawChangedInPressCount:    len(diff.ChangedInPressIDs),
			ChangedIssueCount:         len(changedIssueKeys),
			ChangedInPressCount:       len(changedInPress),
			AddedArticleIDs:           sortedIDs(notifiable),
			AddedArticleCount:         len(notifiable),
			RemovedArticleIDs:         diff.Removed,
			RemovedArticleCount:       len(diff.Removed),
			BackfillArticleIDs:        sortedIDs(backfill),
			BackfillArticleCount:      len(backfill),
			BackfillIssueKeys:         backfillKeys,
			BackfillInPressJournalIDs: backfillInPressIDs,
			Issues:                    diff.IssueDetails,
			InPress:                   diff.InPressDetails,
		},
	}, nil
}

// WriteManifest writes the manifest atomically: temp file in the target
// directory, then rename. A failure before the rename leaves any
// previous manifest intact.
func WriteManifest(manifest *Manifest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// ManifestPath derives the manifest file path for a database: a sibling
// push_state directory keyed by the database's stem name.
func ManifestPath(dbPath, stateDir string) string {
	stem := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	return filepath.Join(stateDir, stem+".changes.json")
}
