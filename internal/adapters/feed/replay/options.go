package replay

import (
	"time"

	"github.com/okian/courtside/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInterval sets the pause between frames. Zero sends back to back.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// WithScript replaces the built-in script.
func WithScript(steps []Step) Option {
	return func(s *Server) {
		if len(steps) > 0 {
			s.script = steps
		}
	}
}

// WithHandshakeTimeout bounds the wait for the client's connect payload.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.handshake = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}
