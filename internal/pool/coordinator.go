// Package pool partitions journals across crawl workers and funnels all
// of their writes through one writer.
package pool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/scholarpipe/indexer/internal/db"
	"github.com/scholarpipe/indexer/internal/fetch"
	"github.com/scholarpipe/indexer/internal/source"
	"github.com/scholarpipe/indexer/internal/state"
)

// Result reports one journal's outcome on the status channel.
type Result struct {
	JournalID int64
	WorkerID  int
	Err       error
}

// Coordinator runs a batch of journal jobs. With one worker everything
// runs on a local writer; with more, each worker gets an IPC client and
// a dedicated writer goroutine owns the storage handle.
type Coordinator struct {
	store     *db.Store
	source    source.Client
	log       *zap.Logger
	workers   int
	fetchOpts fetch.Options
}

// New builds a Coordinator. workers below 1 is treated as 1.
func New(store *db.Store, src source.Client, log *zap.Logger, workers int, fetchOpts fetch.Options) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		source:    src,
		log:       log,
		workers:   workers,
		fetchOpts: fetchOpts,
	}
}

// Run crawls every job and returns one Result per job. Job order is
// preserved within a worker but not across workers.
func (c *Coordinator) Run(ctx context.Context, jobs []fetch.Job) []Result {
	if len(jobs) == 0 {
		return nil
	}
	if c.workers == 1 {
		return c.runLocal(ctx, jobs)
	}
	return c.runPartitioned(ctx, jobs)
}

func (c *Coordinator) runLocal(ctx context.Context, jobs []fetch.Job) []Result {
	writer := db.NewWriter(c.store)
	writer.Start()
	defer writer.Close()

	client := db.NewLocalClient(writer)
	orch := fetch.New(client, state.New(client), c.source, c.log, c.fetchOpts)

	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, c.runJob(ctx, orch, job, 0))
	}
	return results
}

func (c *Coordinator) runPartitioned(ctx context.Context, jobs []fetch.Job) []Result {
	transport := db.NewTransport(c.workers, c.workers*2)
	server := db.NewWriterServer(c.store, transport, c.log)
	go server.Run(context.Background())

	status := make(chan Result, len(jobs))
	var wg sync.WaitGroup
	for workerID := range c.workers {
		client, err := db.NewIPCClient(transport, workerID)
		if err != nil {
			// Unreachable with ids generated here; surface loudly anyway.
			c.log.Error("ipc client setup failed", zap.Int("worker_id", workerID), zap.Error(err))
			continue
		}
		orch := fetch.New(client, state.New(client), c.source,
			c.log.With(zap.Int("worker_id", workerID)), c.fetchOpts)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := workerID; i < len(jobs); i += c.workers {
				status <- c.runJob(ctx, orch, jobs[i], workerID)
			}
		}()
	}

	// Workers must be fully joined before the writer is told to stop;
	// tearing it down with requests in flight would strand callers.
	wg.Wait()
	transport.Stop()
	server.Wait()
	close(status)

	results := make([]Result, 0, len(jobs))
	for result := range status {
		results = append(results, result)
	}
	return results
}

func (c *Coordinator) runJob(ctx context.Context, orch *fetch.Orchestrator, job fetch.Job, workerID int) Result {
	err := orch.ProcessJournal(ctx, job)
	if err != nil {
		c.log.Error("journal failed",
			zap.Int64("journal_id", job.JournalID),
			zap.Int("worker_id", workerID),
			zap.Error(err))
		err = fmt.Errorf("journal %d: %w", job.JournalID, err)
	}
	return Result{JournalID: job.JournalID, WorkerID: workerID, Err: err}
}
