package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// session executes operations against the store with explicit transaction
// boundaries: a deferred transaction opens lazily on the first mutation
// and Commit closes it. Exactly one session may exist per open handle;
// the Writer and the WriterServer each own theirs.
type session struct {
	store *Store
	inTx  bool
}

func newSession(store *Store) *session {
	return &session{store: store}
}

func (s *session) ensureTx(ctx context.Context) error {
	if s.inTx {
		return nil
	}
	if err := s.store.retry.Execute(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.inTx = true
	return nil
}

func (s *session) execute(ctx context.Context, query string, args []any) error {
	if err := s.ensureTx(ctx); err != nil {
		return err
	}
	return s.store.retry.Execute(ctx, query, args...)
}

func (s *session) executeMany(ctx context.Context, query string, rows [][]any) error {
	if err := s.ensureTx(ctx); err != nil {
		return err
	}
	return s.store.retry.ExecuteMany(ctx, query, rows)
}

func (s *session) commit(ctx context.Context) error {
	if !s.inTx {
		return nil
	}
	if err := s.store.retry.Execute(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.inTx = false
	return nil
}

// rollback abandons any open transaction. Used on shutdown so an
// interrupted run never leaves a write half-applied.
func (s *session) rollback(ctx context.Context) {
	if !s.inTx {
		return
	}
	_, _ = s.store.db.ExecContext(ctx, "ROLLBACK")
	s.inTx = false
}

func (s *session) fetchAll(ctx context.Context, query string, args []any) ([][]any, error) {
	rows, err := s.store.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetchall: %w", err)
	}
	defer rows.Close()

	var result [][]any
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("fetchall scan: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetchall rows: %w", err)
	}
	return result, nil
}

func (s *session) fetchOne(ctx context.Context, query string, args []any) ([]any, error) {
	row := s.store.db.QueryRowxContext(ctx, query, args...)
	values, err := row.SliceScan()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetchone: %w", err)
	}
	return values, nil
}
