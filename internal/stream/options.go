package stream

import (
	"net/http"
	"time"

	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReconnect enables automatic reconnection.
func WithReconnect(p ReconnectPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithDialTimeout bounds the websocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithWriteTimeout bounds each payload write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithReadTimeout drops a connection that stays silent for d. Zero, the
// default, waits forever.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.readTimeout = d
		}
	}
}

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h.Clone() }
}

// WithDefaultPayload replaces the standalone payload sent when Connect is
// given none.
func WithDefaultPayload(fn func() *match.ConnectPayload) Option {
	return func(c *Client) {
		if fn != nil {
			c.defaultPayload = fn
		}
	}
}
