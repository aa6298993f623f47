// Package fetch drives one journal's crawl from source metadata through
// issues, articles, and in-press, committing progress markers so an
// interrupted run resumes at year granularity.
package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scholarpipe/indexer/internal/db"
	"github.com/scholarpipe/indexer/internal/metrics"
	"github.com/scholarpipe/indexer/internal/record"
	"github.com/scholarpipe/indexer/internal/source"
	"github.com/scholarpipe/indexer/internal/state"
)

// Options selects the crawl policy for a run.
type Options struct {
	// Resume skips journals a prior run already finished.
	Resume bool
	// Update re-walks every year but only fetches articles for issues
	// that have none stored yet.
	Update bool
	// Concurrency bounds simultaneous article fetches within a journal.
	Concurrency int
	// IssueBatch is how many issues are fetched per commit-sized batch.
	IssueBatch int
}

func (o Options) normalized() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.IssueBatch < 1 {
		o.IssueBatch = 10
	}
	return o
}

// Job is one journal to crawl, as selected from a catalog CSV row.
type Job struct {
	JournalID int64
	LibraryID string
	SourceCSV string
	Row       record.CSVRow
}

// fetchResult is one issue's article fetch outcome. A nil err with nil
// payloads means the source had nothing for the issue.
type fetchResult struct {
	issueID  int64
	payloads []record.Payload
	err      error
}

// Orchestrator runs the per-journal crawl state machine.
type Orchestrator struct {
	client  db.Client
	tracker *state.Tracker
	source  source.Client
	log     *zap.Logger
	opts    Options
}

// New builds an Orchestrator.
func New(client db.Client, tracker *state.Tracker, src source.Client, log *zap.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		client:  client,
		tracker: tracker,
		source:  src,
		log:     log,
		opts:    opts.normalized(),
	}
}

// ProcessJournal crawls one journal to completion. Per-issue fetch
// failures are logged and skipped; storage failures abort the journal.
// The journal is only marked done when every unit either succeeded or
// was deliberately excluded by the worklist policy.
func (o *Orchestrator) ProcessJournal(ctx context.Context, job Job) error {
	started := time.Now()
	log := o.log.With(
		zap.Int64("journal_id", job.JournalID),
		zap.String("library_id", job.LibraryID))

	journalTitle, err := o.refreshMetadata(ctx, job)
	if err != nil {
		metrics.ObserveJournal("error", time.Since(started))
		return err
	}

	if o.opts.Resume && !o.opts.Update {
		done, err := o.tracker.IsJournalComplete(ctx, job.JournalID)
		if err != nil {
			metrics.ObserveJournal("error", time.Since(started))
			return err
		}
		if done {
			log.Info("journal already complete, skipping")
			metrics.ObserveJournal("skipped", time.Since(started))
			return nil
		}
	}

	years, err := o.source.PublicationYears(ctx, job.JournalID, job.LibraryID)
	yearsKnown := err == nil && years != nil
	if !yearsKnown {
		log.Warn("publication years unavailable, skipping year loop", zap.Error(err))
	} else if len(years) == 0 {
		// Nothing to crawl yet. Stop before in-press and leave the
		// journal unfinished so later runs check it again.
		log.Info("no publication years reported, leaving journal unfinished")
		metrics.ObserveJournal("partial", time.Since(started))
		return nil
	}

	var worklist []int
	if yearsKnown {
		if worklist, err = o.yearWorklist(ctx, job, years); err != nil {
			metrics.ObserveJournal("error", time.Since(started))
			return err
		}
	}

	complete := yearsKnown
	seenIssues := make(map[int64]bool)
	for _, year := range worklist {
		ok, err := o.processYear(ctx, job, journalTitle, year, seenIssues, log)
		if err != nil {
			metrics.ObserveJournal("error", time.Since(started))
			return err
		}
		if !ok {
			complete = false
		}
	}

	if ok, err := o.processInPress(ctx, job, journalTitle, log); err != nil {
		metrics.ObserveJournal("error", time.Since(started))
		return err
	} else if !ok {
		complete = false
	}

	if !complete {
		log.Warn("journal finished with skipped units, not marking done")
		metrics.ObserveJournal("partial", time.Since(started))
		return nil
	}

	if err := o.tracker.MarkJournalDone(ctx, job.JournalID); err != nil {
		metrics.ObserveJournal("error", time.Since(started))
		return err
	}
	if err := o.client.Commit(ctx); err != nil {
		metrics.ObserveJournal("error", time.Since(started))
		return err
	}
	log.Info("journal done", zap.Duration("elapsed", time.Since(started)))
	metrics.ObserveJournal("done", time.Since(started))
	return nil
}

// refreshMetadata upserts the journal and its CSV-origin metadata. Runs
// even for journals already marked done so their metadata stays fresh.
func (o *Orchestrator) refreshMetadata(ctx context.Context, job Job) (string, error) {
	payload, err := o.source.JournalMetadata(ctx, job.JournalID, job.LibraryID)
	if err != nil {
		o.log.Warn("journal metadata fetch failed, using catalog row",
			zap.Int64("journal_id", job.JournalID), zap.Error(err))
	}
	journal := record.JournalFromPayload(job.JournalID, job.LibraryID, job.Row, payload)
	if err := db.UpsertJournal(ctx, o.client, journal); err != nil {
		return "", err
	}
	meta := record.MetaFromRow(job.JournalID, job.SourceCSV, job.Row)
	if err := db.UpsertMeta(ctx, o.client, meta); err != nil {
		return "", err
	}
	if err := o.client.Commit(ctx); err != nil {
		return "", err
	}
	title := ""
	if journal.Title != nil {
		title = *journal.Title
	}
	return title, nil
}

// yearWorklist filters the reported years down to those still needing
// work. Update runs re-walk every year.
func (o *Orchestrator) yearWorklist(ctx context.Context, job Job, years []int) ([]int, error) {
	if o.opts.Update {
		return years, nil
	}
	completed, err := o.tracker.CompletedYears(ctx, job.JournalID)
	if err != nil {
		return nil, err
	}
	worklist := make([]int, 0, len(years))
	for _, year := range years {
		if !completed[year] {
			worklist = append(worklist, year)
		}
	}
	return worklist, nil
}

// processYear handles one publication year. Returns false (with a nil
// error) when the year was skipped because its issue list could not be
// fetched or came back empty; the year is then not marked done and the
// journal stays eligible for a later run.
func (o *Orchestrator) processYear(ctx context.Context, job Job, journalTitle string, year int, seenIssues map[int64]bool, log *zap.Logger) (bool, error) {
	log = log.With(zap.Int("year", year))

	payloads, err := o.source.IssuesForYear(ctx, job.JournalID, job.LibraryID, year)
	if err != nil || len(payloads) == 0 {
		log.Warn("no issues available, skipping year", zap.Error(err))
		return false, nil
	}

	issues := make([]record.Issue, 0, len(payloads))
	for _, payload := range payloads {
		issue, ok := record.IssueFromPayload(payload, job.JournalID, year)
		if !ok || seenIssues[issue.IssueID] {
			continue
		}
		seenIssues[issue.IssueID] = true
		issues = append(issues, issue)
	}
	if err := db.UpsertIssues(ctx, o.client, issues); err != nil {
		return false, err
	}

	issueIDs := make([]int64, 0, len(issues))
	for _, issue := range issues {
		issueIDs = append(issueIDs, issue.IssueID)
	}

	fetchIDs := issueIDs
	if o.opts.Update {
		// Issue rows may have changed even where articles have not;
		// reflect them in the listing before any article re-fetch.
		if err := db.RefreshListingForIssues(ctx, o.client, issueIDs); err != nil {
			return false, err
		}
		have, err := db.IssueIDsWithArticles(ctx, o.client, job.JournalID, year)
		if err != nil {
			return false, err
		}
		fetchIDs = make([]int64, 0, len(issueIDs))
		for _, id := range issueIDs {
			if !have[id] {
				fetchIDs = append(fetchIDs, id)
			}
		}
	}

	for _, batch := range record.Chunk(fetchIDs, o.opts.IssueBatch) {
		if err := o.processIssueBatch(ctx, job, journalTitle, batch, log); err != nil {
			return false, err
		}
	}

	if err := o.tracker.MarkYearDone(ctx, job.JournalID, year); err != nil {
		return false, err
	}
	if err := o.client.Commit(ctx); err != nil {
		return false, err
	}
	log.Debug("year done", zap.Int("issues", len(issues)), zap.Int("fetched", len(fetchIDs)))
	return true, nil
}

// processIssueBatch fetches one batch of issues' articles concurrently,
// then applies the results in issue order.
func (o *Orchestrator) processIssueBatch(ctx context.Context, job Job, journalTitle string, issueIDs []int64, log *zap.Logger) error {
	results := make([]fetchResult, len(issueIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, issueID := range issueIDs {
		g.Go(func() error {
			payloads, err := o.source.ArticlesForIssue(gctx, issueID, job.LibraryID)
			results[i] = fetchResult{issueID: issueID, payloads: payloads, err: err}
			return nil
		})
	}
	// Goroutines record failures in their slot rather than returning
	// them; a single issue's failure must not cancel its siblings.
	_ = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	for _, result := range results {
		if result.err != nil {
			log.Warn("issue articles fetch failed, skipping issue",
				zap.Int64("issue_id", result.issueID), zap.Error(result.err))
			continue
		}
		if len(result.payloads) == 0 {
			continue
		}
		articles := make([]record.Article, 0, len(result.payloads))
		for _, payload := range result.payloads {
			issueID := result.issueID
			if article, ok := record.ArticleFromPayload(payload, job.JournalID, &issueID); ok {
				articles = append(articles, article)
			}
		}
		if err := o.storeArticles(ctx, journalTitle, articles); err != nil {
			return err
		}
	}
	return nil
}

// processInPress fetches and stores the journal's ahead-of-issue
// articles. Returns false when the fetch failed.
func (o *Orchestrator) processInPress(ctx context.Context, job Job, journalTitle string, log *zap.Logger) (bool, error) {
	payloads, err := o.source.InPressArticles(ctx, job.JournalID, job.LibraryID)
	if err != nil {
		log.Warn("in-press fetch failed, skipping", zap.Error(err))
		return false, nil
	}
	articles := make([]record.Article, 0, len(payloads))
	for _, payload := range payloads {
		if article, ok := record.ArticleFromPayload(payload, job.JournalID, nil); ok {
			articles = append(articles, article)
		}
	}
	if err := o.storeArticles(ctx, journalTitle, articles); err != nil {
		return false, err
	}
	if err := o.client.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) storeArticles(ctx context.Context, journalTitle string, articles []record.Article) error {
	if len(articles) == 0 {
		return nil
	}
	if err := db.UpsertArticles(ctx, o.client, articles); err != nil {
		return err
	}
	if err := db.UpsertArticleSearch(ctx, o.client, articles, journalTitle); err != nil {
		return err
	}
	articleIDs := make([]int64, 0, len(articles))
	for _, article := range articles {
		articleIDs = append(articleIDs, article.ArticleID)
	}
	if err := db.RefreshListingForArticles(ctx, o.client, articleIDs); err != nil {
		return fmt.Errorf("refresh listing: %w", err)
	}
	return nil
}
