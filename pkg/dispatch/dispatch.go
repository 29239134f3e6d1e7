// Package dispatch provides a serial executor: submitted functions run one at
// a time, in submission order, on a single goroutine.
//
// Submit never blocks, so a running function may submit more work, or call
// code that does, without deadlocking.
package dispatch

import (
	"sync"
)

// Serial is an unbounded FIFO of functions drained by one goroutine.
type Serial struct {
	mu      sync.Mutex
	jobs    []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	onPanic func(any)
}

// Option configures a Serial.
type Option func(*Serial)

// WithPanicHandler is called with the recovered value when a job panics. The
// executor keeps running either way.
func WithPanicHandler(fn func(any)) Option {
	return func(s *Serial) { s.onPanic = fn }
}

// NewSerial starts the executor goroutine.
func NewSerial(opts ...Option) *Serial {
	s := &Serial{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// Submit queues fn. It reports false once Close has been called.
func (s *Serial) Submit(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.jobs = append(s.jobs, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync blocks until every job submitted before it has run. It returns
// immediately after Close. Do not call it from inside a job.
func (s *Serial) Sync() {
	ch := make(chan struct{})
	if !s.Submit(func() { close(ch) }) {
		return
	}
	select {
	case <-ch:
	case <-s.done:
	}
}

// Close stops accepting jobs. Jobs already queued still run.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the executor has drained and exited after Close.
func (s *Serial) Done() <-chan struct{} { return s.done }

func (s *Serial) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.jobs) == 0 && !s.closed {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		if len(s.jobs) == 0 {
			s.mu.Unlock()
			return
		}
		job := s.jobs[0]
		s.jobs[0] = nil
		s.jobs = s.jobs[1:]
		s.mu.Unlock()

		s.run(job)
	}
}

func (s *Serial) run(job func()) {
	defer func() {
		if r := recover(); r != nil && s.onPanic != nil {
			s.onPanic(r)
		}
	}()
	job()
}
