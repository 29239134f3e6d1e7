package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/courtside/pkg/logger"
)

// Handler processes one item.
type Handler[T any] interface {
	Handle(ctx context.Context, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) error { return f(ctx, item) }

// Source defines how the worker receives items.
type Source[T any] interface {
	Next(ctx context.Context) (T, bool)
}

// Worker processes items until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is
	// called, or the source is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the item in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker handles items one at a time in the order the source yields
// them.
type InMemoryWorker[T any] struct {
	source  Source[T]
	handler Handler[T]
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker[T any](source Source[T], handler Handler[T], opts ...Option) *InMemoryWorker[T] {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(s.name)
	}
	return &InMemoryWorker[T]{
		source:   source,
		handler:  handler,
		name:     s.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   s.logger,
	}
}

// Run starts the worker loop. An item is taken from the source only once
// the previous one has been handled.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		item, ok := w.source.Next(ctx)
		if !ok {
			return
		}
		start := time.Now()
		if err := w.handler.Handle(ctx, item); err != nil {
			w.logger.Error(ctx, "error processing item",
				logger.Error(err),
				logger.Duration("took", time.Since(start)),
			)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker[T]) Done() <-chan struct{} { return w.done }

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
