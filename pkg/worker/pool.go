// Package worker provides an asynchronous worker pool that records resolved
// transaction watches using the provided storage.Driver and announces them
// through the provided eventstream.Publisher.
//
// The pool decouples persistence from the request path so a caller waiting on
// a transaction status is answered as soon as the status arrives.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/substream/pkg/eventstream"
	"github.com/papercomputeco/substream/pkg/eventstream/nop"
	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/storage"
)

// ErrNoDriver is returned by NewPool without a storage driver.
var ErrNoDriver = errors.New("worker pool requires a storage driver")

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Record *storage.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting records.
	Driver storage.Driver

	// Publisher receives one event per newly stored record. Defaults to a
	// no-op publisher.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, ErrNoDriver
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Record == nil {
		p.logger.Error("job not queued, nil record")
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Error("job not queued, pool closed, job dropped",
			"record_id", job.Record.ID.String(),
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"record_id", job.Record.ID.String(),
			"transaction", job.Record.Transaction,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"record_id", job.Record.ID.String(),
			"transaction", job.Record.Transaction,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
// Close is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores the job's record and, when it is new, publishes its
// resolved event. Publish failures are logged and do not undo the store.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	rec := job.Record

	isNew, err := p.config.Driver.Put(ctx, rec)
	if err != nil {
		p.logger.Error("storing watch record failed",
			"record_id", rec.ID.String(),
			"error", err,
		)
		return
	}

	if !isNew {
		p.logger.Debug("watch record already stored", "record_id", rec.ID.String())
		return
	}

	p.logger.Info("watch recorded",
		"record_id", rec.ID.String(),
		"transaction", rec.Transaction,
		"result", rec.Result,
	)

	if err := p.config.Publisher.PublishStatus(ctx, NewStatusEvent(rec)); err != nil {
		p.logger.Warn("publishing status event failed",
			"record_id", rec.ID.String(),
			"error", err,
		)
	}
}
