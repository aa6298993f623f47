// Package db owns the SQLite schema and the single-writer access
// discipline. All mutation funnels through exactly one logical writer per
// run: the local Writer goroutine or the IPC WriterServer.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Options controls how a Store is opened.
type Options struct {
	// BusyTimeoutMS is the SQLite busy handler timeout.
	BusyTimeoutMS int
	// Tokenizer selects the FTS5 tokenizer. Changing it triggers a full
	// rebuild of the search table on the next Init.
	Tokenizer string
	Logger    *zap.Logger
}

// Store wraps the one real database handle for a run.
type Store struct {
	db        *sqlx.DB
	retry     *RetryExecutor
	path      string
	tokenizer string
	busyMS    int
	log       *zap.Logger
}

// Open opens (creating if needed) the SQLite database at path. The
// connection pool is pinned to a single connection; serialization on top
// of it is the writer's job.
func Open(path string, opts Options) (*Store, error) {
	handle, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	handle.SetMaxOpenConns(1)

	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = 30000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		db:        handle,
		retry:     NewRetryExecutor(handle),
		path:      path,
		tokenizer: opts.Tokenizer,
		busyMS:    opts.BusyTimeoutMS,
		log:       opts.Logger,
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Optimize refreshes planner statistics after a data load.
func (s *Store) Optimize(ctx context.Context) error {
	if err := s.retry.Execute(ctx, "ANALYZE;"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := s.retry.Execute(ctx, "PRAGMA optimize;"); err != nil {
		return fmt.Errorf("pragma optimize: %w", err)
	}
	return nil
}
