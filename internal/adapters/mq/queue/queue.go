// Package queue provides a bounded in-memory FIFO with non-blocking enqueue
// and blocking dequeue.
package queue

import (
	"context"
	"sync"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and blocking dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It returns false if the queue is full, closed or
	// ctx is done.
	Enqueue(ctx context.Context, item T) bool

	// Next blocks for the next item in enqueue order. It reports false once
	// the queue is closed and drained, or ctx is done.
	Next(ctx context.Context) (T, bool)

	// Len returns the current number of queued items.
	Len(ctx context.Context) int

	// Close stops accepting items. Items already queued are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int
	observer func(int)

	mu     sync.RWMutex
	closed bool
}

var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &InMemoryQueue[T]{
		items:    make(chan T, cfg.capacity),
		capacity: cfg.capacity,
		observer: cfg.observer,
	}
	q.observe(0)
	return q
}

func (q *InMemoryQueue[T]) observe(n int) {
	if q.observer != nil {
		q.observer(n)
	}
}

// Enqueue adds an item to the queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	return q.Put(ctx, item) == nil
}

// Put is Enqueue with the reason for a rejection.
func (q *InMemoryQueue[T]) Put(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.items <- item:
		q.observe(len(q.items))
		return nil
	default:
		return ErrFull
	}
}

// Next takes the next item. An item leaves the queue only when a caller
// returns with it, so none is lost to a consumer that gave up. Use a single
// consumer when order matters.
func (q *InMemoryQueue[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	if ctx.Err() != nil {
		return zero, false
	}
	select {
	case <-ctx.Done():
		return zero, false
	case item, ok := <-q.items:
		if !ok {
			return zero, false
		}
		q.observe(len(q.items))
		return item, true
	}
}

// Len returns the current number of queued items.
func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	return len(q.items)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue[T]) Capacity() int { return q.capacity }

// Close gracefully shuts down the queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
