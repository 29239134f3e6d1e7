package queue

import "errors"

var (
	// ErrClosed is returned by Put on a closed queue.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by Put when the queue is at capacity.
	ErrFull = errors.New("queue full")
)
