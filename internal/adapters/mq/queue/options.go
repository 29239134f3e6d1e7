package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*config)

type config struct {
	capacity int
	observer func(size int)
}

// WithCapacity sets the maximum number of queued items.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithSizeObserver registers a callback that receives the queue length after
// every enqueue and dequeue, typically a gauge setter.
func WithSizeObserver(fn func(size int)) Option {
	return func(c *config) {
		c.observer = fn
	}
}
