package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// OpType names an IPC request kind on the wire.
type OpType string

// IPC request kinds.
const (
	OpExecute     OpType = "execute"
	OpExecuteMany OpType = "executemany"
	OpCommit      OpType = "commit"
	OpFetchAll    OpType = "fetchall"
	OpFetchOne    OpType = "fetchone"
	OpStop        OpType = "stop"
)

// ErrProtocol marks an IPC coordination bug: a mismatched response id or
// an unexpected message shape. Not recoverable by the caller.
var ErrProtocol = errors.New("ipc protocol fault")

// Request is one operation sent to the writer server.
type Request struct {
	ID       string
	Type     OpType
	Query    string
	Args     []any
	Rows     [][]any
	WorkerID int
}

// Response carries the writer server's reply for one request.
type Response struct {
	ID   string
	OK   bool
	Rows [][]any
	Row  []any
	Err  string
}

// Transport carries requests to the writer server and responses back.
// Response channels are per-worker so replies can never be delivered to
// the wrong caller. The substrate is an in-memory channel pair; a real
// message queue could replace it without touching any client.
type Transport struct {
	requests  chan Request
	responses []chan Response
}

// NewTransport builds a transport for the given worker count.
func NewTransport(workers, depth int) *Transport {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	responses := make([]chan Response, workers)
	for i := range responses {
		responses[i] = make(chan Response, depth)
	}
	return &Transport{
		requests:  make(chan Request, depth),
		responses: responses,
	}
}

// Workers returns the number of worker response queues.
func (t *Transport) Workers() int { return len(t.responses) }

// Stop tells the writer server to shut down. Call only after every worker
// has finished; the server must never be torn down with requests in
// flight.
func (t *Transport) Stop() {
	t.requests <- Request{Type: OpStop}
}

// IPCClient proxies the Client contract over a Transport. Used by worker
// goroutines that must not touch the storage handle.
type IPCClient struct {
	transport *Transport
	workerID  int
}

// NewIPCClient builds a client bound to one worker's response queue.
func NewIPCClient(transport *Transport, workerID int) (*IPCClient, error) {
	if workerID < 0 || workerID >= transport.Workers() {
		return nil, fmt.Errorf("%w: worker id %d out of range", ErrProtocol, workerID)
	}
	return &IPCClient{transport: transport, workerID: workerID}, nil
}

func (c *IPCClient) send(ctx context.Context, req Request) (Response, error) {
	req.ID = uuid.NewString()
	req.WorkerID = c.workerID
	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("ipc enqueue: %w", ctx.Err())
	case c.transport.requests <- req:
	}
	resp := <-c.transport.responses[c.workerID]
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("%w: response id %q for request %q", ErrProtocol, resp.ID, req.ID)
	}
	if !resp.OK {
		return Response{}, fmt.Errorf("ipc writer: %s", resp.Err)
	}
	return resp, nil
}

// Execute runs one statement on the writer server.
func (c *IPCClient) Execute(ctx context.Context, query string, args ...any) error {
	_, err := c.send(ctx, Request{Type: OpExecute, Query: query, Args: args})
	return err
}

// ExecuteMany runs the statement for each argument row on the writer server.
func (c *IPCClient) ExecuteMany(ctx context.Context, query string, rows [][]any) error {
	_, err := c.send(ctx, Request{Type: OpExecuteMany, Query: query, Rows: rows})
	return err
}

// Commit commits the writer server's open transaction.
func (c *IPCClient) Commit(ctx context.Context) error {
	_, err := c.send(ctx, Request{Type: OpCommit})
	return err
}

// FetchAll returns all rows for a query.
func (c *IPCClient) FetchAll(ctx context.Context, query string, args ...any) ([][]any, error) {
	resp, err := c.send(ctx, Request{Type: OpFetchAll, Query: query, Args: args})
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// FetchOne returns a single row, or nil when the query matches nothing.
func (c *IPCClient) FetchOne(ctx context.Context, query string, args ...any) ([]any, error) {
	resp, err := c.send(ctx, Request{Type: OpFetchOne, Query: query, Args: args})
	if err != nil {
		return nil, err
	}
	return resp.Row, nil
}

var _ Client = (*IPCClient)(nil)
