package roster

import "errors"

var (
	// ErrInvalidSlot is returned when a slot reference does not exist in a view.
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrInvalidLocation is returned for a location other than STARTER or BENCH.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInconsistent is returned when a view breaks the one player per slot rule.
	ErrInconsistent = errors.New("inconsistent roster")
)
