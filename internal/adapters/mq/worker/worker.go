// Package worker drains the announcement queue into the live feed.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/verdict/internal/adapters/mq/queue"
	"github.com/okian/verdict/pkg/logger"
	"github.com/okian/verdict/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 2
	workerShutdownTimeout = 5 * time.Second
)

// Broadcaster delivers an announcement to live subscribers.
type Broadcaster interface {
	Publish(typ string, data any) error
}

// Queue defines how workers receive announcements.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Announcement
}

// Worker delivers announcements until its queue closes or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current delivery.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	broadcaster Broadcaster
	name        string
	now         func() time.Time

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, b Broadcaster, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		broadcaster: b,
		name:        "worker",
		now:         time.Now,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case a, ok := <-items:
			if !ok {
				return
			}
			if err := w.deliver(a); err != nil {
				w.logger.Warn(ctx, "announcement not delivered",
					logger.String("type", a.Type),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) deliver(a queue.Announcement) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	if !a.QueuedAt.IsZero() {
		metrics.RecordQueueDeliveryLatency(float64(w.now().Sub(a.QueuedAt).Microseconds()) / 1000)
	}
	if err := w.broadcaster.Publish(a.Type, a.Data); err != nil {
		metrics.RecordQueueDrop("broadcast_failed")
		metrics.RecordErrorByComponent("worker", "broadcast_failed")
		return fmt.Errorf("broadcast %s: %w", a.Type, err)
	}
	return nil
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one falls
// back to a small default since delivery is I/O bound on the hub.
func NewPool(workerCount int, q Queue, b Broadcaster, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  log,
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, b,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(log),
		)
	}
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Shutdown closes the queue, lets workers drain what is left and waits for
// them up to ctx's deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-waitCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return ErrShutdownTimeout
	}
	return nil
}
