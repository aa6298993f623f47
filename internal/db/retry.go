package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/scholarpipe/indexer/internal/metrics"
)

const (
	retryAttempts  = 6
	retryBaseDelay = 500 * time.Millisecond
)

const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// IsLocked reports whether err is transient lock contention from a
// concurrent writer. Every other failure must propagate unretried.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

// RetryExecutor wraps storage mutations in a bounded retry loop that
// only fires on lock contention. This is the single place retry policy
// lives; callers assume operations either succeed or fail for real.
type RetryExecutor struct {
	db    *sqlx.DB
	sleep func(time.Duration)
}

// NewRetryExecutor builds a RetryExecutor over the given handle.
func NewRetryExecutor(db *sqlx.DB) *RetryExecutor {
	return &RetryExecutor{db: db, sleep: time.Sleep}
}

func (r *RetryExecutor) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsLocked(err) {
			return err
		}
		metrics.ObserveLockRetry()
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		default:
		}
		r.sleep(retryBaseDelay * time.Duration(attempt))
	}
	return fmt.Errorf("retries exhausted: %w", err)
}

// Execute runs a single statement, retrying on lock contention.
func (r *RetryExecutor) Execute(ctx context.Context, query string, args ...any) error {
	return r.do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, args...)
		return err
	})
}

// ExecuteMany runs the statement once per argument row, retrying each
// execution on lock contention.
func (r *RetryExecutor) ExecuteMany(ctx context.Context, query string, rows [][]any) error {
	for _, row := range rows {
		if err := r.Execute(ctx, query, row...); err != nil {
			return err
		}
	}
	return nil
}
