package db

import "context"

// Client is the storage access contract shared by the local single-writer
// client and the IPC proxy. Higher layers never touch the handle directly.
type Client interface {
	Execute(ctx context.Context, query string, args ...any) error
	ExecuteMany(ctx context.Context, query string, rows [][]any) error
	Commit(ctx context.Context) error
	FetchAll(ctx context.Context, query string, args ...any) ([][]any, error)
	FetchOne(ctx context.Context, query string, args ...any) ([]any, error)
}
