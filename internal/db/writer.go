package db

import (
	"context"
	"fmt"
)

type opKind int

const (
	opExecute opKind = iota
	opExecuteMany
	opCommit
	opFetchAll
	opFetchOne
)

type opResult struct {
	rows [][]any
	row  []any
	err  error
}

type op struct {
	kind  opKind
	query string
	args  []any
	rows  [][]any
	reply chan opResult
}

// Writer serializes all storage access through one background goroutine.
// Callers enqueue operations and block on a reply channel; no two
// operations ever interleave at the storage-engine level. Once enqueued
// an operation always completes or errors; there is no cancellation of
// in-flight writes.
type Writer struct {
	session *session
	ops     chan op
	done    chan struct{}
}

// NewWriter builds a Writer over the store's handle.
func NewWriter(store *Store) *Writer {
	return &Writer{
		session: newSession(store),
		ops:     make(chan op),
		done:    make(chan struct{}),
	}
}

// Start launches the background loop.
func (w *Writer) Start() {
	go w.run()
}

// Close stops the loop after all enqueued work completes and rolls back
// any uncommitted transaction.
func (w *Writer) Close() {
	close(w.ops)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	// Enqueued operations run to completion regardless of caller context.
	ctx := context.Background()
	for item := range w.ops {
		var res opResult
		switch item.kind {
		case opExecute:
			res.err = w.session.execute(ctx, item.query, item.args)
		case opExecuteMany:
			res.err = w.session.executeMany(ctx, item.query, item.rows)
		case opCommit:
			res.err = w.session.commit(ctx)
		case opFetchAll:
			res.rows, res.err = w.session.fetchAll(ctx, item.query, item.args)
		case opFetchOne:
			res.row, res.err = w.session.fetchOne(ctx, item.query, item.args)
		}
		item.reply <- res
	}
	w.session.rollback(ctx)
}

func (w *Writer) submit(ctx context.Context, item op) (opResult, error) {
	item.reply = make(chan opResult, 1)
	select {
	case <-ctx.Done():
		return opResult{}, fmt.Errorf("writer enqueue: %w", ctx.Err())
	case w.ops <- item:
	}
	return <-item.reply, nil
}

// LocalClient routes every operation, reads included, through the Writer.
type LocalClient struct {
	writer *Writer
}

// NewLocalClient wraps a started Writer.
func NewLocalClient(writer *Writer) *LocalClient {
	return &LocalClient{writer: writer}
}

// Execute runs one statement through the writer.
func (c *LocalClient) Execute(ctx context.Context, query string, args ...any) error {
	res, err := c.writer.submit(ctx, op{kind: opExecute, query: query, args: args})
	if err != nil {
		return err
	}
	return res.err
}

// ExecuteMany runs the statement for each argument row through the writer.
func (c *LocalClient) ExecuteMany(ctx context.Context, query string, rows [][]any) error {
	res, err := c.writer.submit(ctx, op{kind: opExecuteMany, query: query, rows: rows})
	if err != nil {
		return err
	}
	return res.err
}

// Commit commits the writer's open transaction.
func (c *LocalClient) Commit(ctx context.Context) error {
	res, err := c.writer.submit(ctx, op{kind: opCommit})
	if err != nil {
		return err
	}
	return res.err
}

// FetchAll returns all rows for a query.
func (c *LocalClient) FetchAll(ctx context.Context, query string, args ...any) ([][]any, error) {
	res, err := c.writer.submit(ctx, op{kind: opFetchAll, query: query, args: args})
	if err != nil {
		return nil, err
	}
	return res.rows, res.err
}

// FetchOne returns a single row, or nil when the query matches nothing.
func (c *LocalClient) FetchOne(ctx context.Context, query string, args ...any) ([]any, error) {
	res, err := c.writer.submit(ctx, op{kind: opFetchOne, query: query, args: args})
	if err != nil {
		return nil, err
	}
	return res.row, res.err
}

var _ Client = (*LocalClient)(nil)
