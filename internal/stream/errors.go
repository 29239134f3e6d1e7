package stream

import "errors"

var (
	// ErrClosed is returned by a client after Close.
	ErrClosed = errors.New("stream client closed")
	// ErrNotConnected is returned when a send needs an open connection.
	ErrNotConnected = errors.New("stream not connected")
)
