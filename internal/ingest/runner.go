package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
)

const (
	restartDelay    = time.Second
	maxRestartDelay = 30 * time.Second
)

// Source delivers queue messages to a handler until ctx ends.
type Source interface {
	Consume(ctx context.Context, queueName string, handler queue.Handler) error
}

// Runner keeps a fixed number of consume loops running against one queue.
type Runner struct {
	source    Source
	queueName string
	workers   int
	handler   queue.Handler
	log       logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRunner creates a Runner with workers consume loops feeding c.
func NewRunner(source Source, queueName string, workers int, c *Consumer, log logger.Logger) *Runner {
	return &Runner{
		source:    source,
		queueName: queueName,
		workers:   max(workers, 1),
		handler:   c.Handler(),
		log:       log.With(logger.String("queue", queueName)),
	}
}

// Start launches the workers. Calling Start on a running Runner does nothing.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.started = true

	for i := range r.workers {
		r.wg.Add(1)
		go r.work(ctx, i)
	}

	r.log.Info("Ingest workers started", logger.Int("workers", r.workers))
}

// Stop cancels the workers and waits for them. Deliveries being handled are left pending.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.log.Info("Ingest workers stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// work restarts Consume after errors such as a lost Redis connection.
func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()

	log := r.log.With(logger.Int("worker", id))
	delay := restartDelay

	for {
		err := r.source.Consume(ctx, r.queueName, r.handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("Consumer exited, restarting", logger.Error(err), logger.Duration("delay", delay))
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, maxRestartDelay)
	}
}
