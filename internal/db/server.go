package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// WriterServer owns the only open storage handle in multi-worker mode and
// services IPC requests one at a time. Errors surface to the requesting
// worker, never silently dropped.
type WriterServer struct {
	session   *session
	transport *Transport
	log       *zap.Logger
	done      chan struct{}
}

// NewWriterServer builds a server over the store and transport.
func NewWriterServer(store *Store, transport *Transport, log *zap.Logger) *WriterServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &WriterServer{
		session:   newSession(store),
		transport: transport,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Run services requests until a stop message arrives or the context ends.
func (s *WriterServer) Run(ctx context.Context) {
	defer close(s.done)
	defer s.session.rollback(context.Background())
	for {
		select {
		case <-ctx.Done():
			s.log.Warn("writer server canceled with workers possibly in flight",
				zap.Error(ctx.Err()))
			return
		case req := <-s.transport.requests:
			if req.Type == OpStop {
				return
			}
			s.handle(req)
		}
	}
}

// Wait blocks until the server loop has exited.
func (s *WriterServer) Wait() {
	<-s.done
}

func (s *WriterServer) handle(req Request) {
	if req.WorkerID < 0 || req.WorkerID >= s.transport.Workers() {
		s.log.Error("dropping request with invalid worker id",
			zap.Int("worker_id", req.WorkerID), zap.String("request_id", req.ID))
		return
	}

	// Operations run to completion regardless of worker context.
	ctx := context.Background()
	resp := Response{ID: req.ID, OK: true}
	var err error
	switch req.Type {
	case OpExecute:
		if req.Query == "" {
			err = fmt.Errorf("%w: missing query for execute", ErrProtocol)
		} else {
			err = s.session.execute(ctx, req.Query, req.Args)
		}
	case OpExecuteMany:
		if req.Query == "" {
			err = fmt.Errorf("%w: missing query for executemany", ErrProtocol)
		} else {
			err = s.session.executeMany(ctx, req.Query, req.Rows)
		}
	case OpCommit:
		err = s.session.commit(ctx)
	case OpFetchAll:
		resp.Rows, err = s.session.fetchAll(ctx, req.Query, req.Args)
	case OpFetchOne:
		resp.Row, err = s.session.fetchOne(ctx, req.Query, req.Args)
	default:
		err = fmt.Errorf("%w: unknown request type %q", ErrProtocol, req.Type)
	}
	if err != nil {
		resp = Response{ID: req.ID, OK: false, Err: err.Error()}
	}
	s.transport.responses[req.WorkerID] <- resp
}
