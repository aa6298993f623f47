// Package app wires the indexer's components into a full crawl run.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/scholarpipe/indexer/internal/catalog"
	"github.com/scholarpipe/indexer/internal/changes"
	"github.com/scholarpipe/indexer/internal/config"
	"github.com/scholarpipe/indexer/internal/db"
	"github.com/scholarpipe/indexer/internal/fetch"
	"github.com/scholarpipe/indexer/internal/metrics"
	"github.com/scholarpipe/indexer/internal/pool"
	"github.com/scholarpipe/indexer/internal/source"
	"github.com/scholarpipe/indexer/internal/state"
)

// RunOptions selects what one invocation crawls and how.
type RunOptions struct {
	// File names a single catalog CSV; empty means every catalog.
	File   string
	Resume bool
	Update bool
}

// App holds the long-lived pieces of one indexer invocation.
type App struct {
	cfg    config.Config
	log    *zap.Logger
	source source.Client
}

// New builds an App from configuration.
func New(cfg config.Config, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	client := source.NewRESTClient(source.NewTokenCache(), source.RESTOptions{
		BaseURL: cfg.Source.BaseURL,
		Timeout: cfg.SourceTimeout(),
		Retries: cfg.Source.MaxRetries,
		Logger:  log,
	})
	return &App{cfg: cfg, log: log, source: client}
}

// NewWithSource builds an App over a caller-supplied source client.
func NewWithSource(cfg config.Config, log *zap.Logger, src source.Client) *App {
	app := New(cfg, log)
	app.source = src
	return app
}

// Run crawls every selected catalog. A catalog's failure is logged and
// does not stop the remaining catalogs; the first failure is returned
// once all catalogs have been attempted.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	metrics.Init()

	paths, err := catalog.Discover(a.cfg.Catalog.Dir, opts.File)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		a.log.Warn("no catalog files found", zap.String("dir", a.cfg.Catalog.Dir))
		return nil
	}
	if err := os.MkdirAll(a.cfg.Store.Dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	var firstErr error
	for _, path := range paths {
		if err := a.runCatalog(ctx, path, opts); err != nil {
			a.log.Error("catalog run failed",
				zap.String("catalog", filepath.Base(path)), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("catalog %s: %w", filepath.Base(path), err)
			}
		}
	}
	return firstErr
}

func (a *App) runCatalog(ctx context.Context, csvPath string, opts RunOptions) error {
	name := filepath.Base(csvPath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	log := a.log.With(zap.String("catalog", name))

	rows, err := catalog.LoadRows(csvPath, a.cfg.Source.LibraryID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Info("catalog empty, skipping")
		return nil
	}

	jobs := make([]fetch.Job, 0, len(rows))
	for _, row := range rows {
		journalID, ok := catalog.JournalID(row)
		if !ok {
			log.Warn("catalog row has no usable journal id",
				zap.String("title", row["title"]))
			continue
		}
		jobs = append(jobs, fetch.Job{
			JournalID: journalID,
			LibraryID: row["library"],
			SourceCSV: name,
			Row:       row,
		})
	}
	if len(jobs) == 0 {
		log.Warn("no crawlable rows in catalog")
		return nil
	}

	dbPath := filepath.Join(a.cfg.Store.Dir, stem+".db")
	store, err := db.Open(dbPath, db.Options{
		BusyTimeoutMS: a.cfg.Store.BusyTimeoutMS,
		Tokenizer:     a.cfg.Store.FTSTokenizer,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}

	detector := changes.NewDetector(dbPath, log)
	var before *changes.Snapshot
	if opts.Update {
		if before, err = detector.Snapshot(ctx); err != nil {
			return err
		}
	}

	coord := pool.New(store, a.source, log, a.cfg.Crawl.Workers, fetch.Options{
		Resume:      opts.Resume,
		Update:      opts.Update,
		Concurrency: a.cfg.Crawl.Concurrency,
		IssueBatch:  a.cfg.Crawl.IssueBatch,
	})
	results := coord.Run(ctx, jobs)
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	log.Info("catalog crawl finished",
		zap.Int("journals", len(results)), zap.Int("failed", failed))

	if err := store.Optimize(ctx); err != nil {
		return err
	}

	if opts.Update {
		after, err := detector.Snapshot(ctx)
		if err != nil {
			return err
		}
		manifest, err := detector.BuildManifest(ctx, before, after)
		if err != nil {
			return err
		}
		manifestPath := changes.ManifestPath(dbPath, a.cfg.Changes.StateDir)
		if err := changes.WriteManifest(manifest, manifestPath); err != nil {
			return err
		}
		log.Info("change manifest written",
			zap.String("path", manifestPath),
			zap.Int("notifiable", len(manifest.NotifiableArticleIDs)),
			zap.Int("backfill", len(manifest.BackfillArticleIDs)))
		return nil
	}

	// Only a completed full crawl may flip the listing gate.
	return a.markListingReady(ctx, store)
}

func (a *App) markListingReady(ctx context.Context, store *db.Store) error {
	writer := db.NewWriter(store)
	writer.Start()
	defer writer.Close()
	client := db.NewLocalClient(writer)
	if err := state.New(client).MarkListingReady(ctx); err != nil {
		return err
	}
	return client.Commit(ctx)
}
