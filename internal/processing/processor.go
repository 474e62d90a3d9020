// Package processing runs text extraction in-process on a pool of
// goroutines. It is used when no Redis queue is configured.
package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dharsanguruparan/attachvault/internal/queue"
)

// ErrQueueFull is returned by Enqueue when the buffer is saturated.
var ErrQueueFull = errors.New("processing queue full")

// Extractor handles one extraction job.
type Extractor interface {
	Extract(ctx context.Context, payload queue.ExtractPayload) error
}

// Pool consumes extraction jobs with a fixed number of workers.
type Pool struct {
	extractor Extractor
	queue     chan queue.ExtractPayload
	workers   int
	logger    *slog.Logger
}

// New builds a Pool with queue capacity tied to worker count.
func New(extractor Extractor, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		extractor: extractor,
		queue:     make(chan queue.ExtractPayload, workers*16),
		workers:   workers,
		logger:    logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight job has returned.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
	return nil
}

// Enqueue queues a job without blocking.
func (p *Pool) Enqueue(ctx context.Context, payload queue.ExtractPayload) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- payload:
		return nil
	default:
		p.logger.Warn("processing queue full, dropping job", "document_id", payload.DocumentID)
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			// Extraction runs detached from the request that enqueued it.
			if err := p.extractor.Extract(context.WithoutCancel(ctx), job); err != nil {
				p.logger.Debug("job finished with error", "document_id", job.DocumentID, "error", err)
			}
		}
	}
}
