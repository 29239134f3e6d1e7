package reconcile

import (
	"time"

	"github.com/okian/courtside/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQueueSize caps the number of swaps waiting to be persisted.
func WithQueueSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithPersistTimeout bounds each call to the store.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.persistTimeout = d
		}
	}
}
