// Package queue buffers live-feed announcements between the request path and
// the workers that broadcast them, so a slow subscriber never holds up a
// submission or a release.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/verdict/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Announcement is one feed message waiting for delivery.
type Announcement struct {
	Type     string
	Data     any
	QueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an announcement. It returns false when the queue is
	// full or closed.
	Enqueue(ctx context.Context, a Announcement) bool

	// Dequeue returns a channel that yields announcements until the queue
	// is closed and drained.
	Dequeue(ctx context.Context) <-chan Announcement

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items      chan Announcement
	capacity   int
	bufferSize int
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.items = make(chan Announcement, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Publish enqueues a feed message. It satisfies the HTTP layer's publisher
// contract; a full or closed queue drops the message and reports why.
func (q *InMemoryQueue) Publish(typ string, data any) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !q.Enqueue(context.Background(), Announcement{Type: typ, Data: data}) {
		return ErrFull
	}
	return nil
}

// Enqueue adds an announcement to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, a Announcement) bool { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDrop("closed")
		return false
	}
	if len(q.items) >= q.capacity {
		metrics.RecordQueueDrop("capacity_exceeded")
		return false
	}
	if a.QueuedAt.IsZero() {
		a.QueuedAt = q.now()
	}

	select {
	case q.items <- a:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.items))
		return true
	case <-ctx.Done():
		metrics.RecordQueueDrop("context_cancelled")
		return false
	default:
		metrics.RecordQueueDrop("queue_full")
		return false
	}
}

// Dequeue returns a channel that receives announcements as they arrive.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Announcement {
	out := make(chan Announcement)
	go func() {
		defer close(out)
		for a := range q.items {
			select {
			case out <- a:
				metrics.UpdateQueueSize(len(q.items))
			case <-ctx.Done():
				metrics.RecordQueueDrop("context_cancelled")
				return
			}
		}
	}()
	return out
}

// Len returns the number of queued announcements.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting announcements. Queued ones stay readable until
// drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
