package reconcile

import "errors"

var (
	// ErrNotLoaded is returned before the first successful Load.
	ErrNotLoaded = errors.New("roster not loaded")
	// ErrStopped is returned once the reconciler no longer accepts swaps.
	ErrStopped = errors.New("reconciler stopped")
	// ErrBusy is returned when the persist backlog is full.
	ErrBusy = errors.New("too many pending swaps")
)
