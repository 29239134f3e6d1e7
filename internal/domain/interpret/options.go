package interpret

import "github.com/okian/courtside/pkg/logger"

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for resolution misses.
func WithLogger(l logger.Logger) Option {
	return func(i *Interpreter) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithNameFallback toggles matching actors by exact name when no id
// matches. Enabled by default; names collide, so ids should be preferred.
func WithNameFallback(enabled bool) Option {
	return func(i *Interpreter) {
		i.nameFallback = enabled
	}
}
