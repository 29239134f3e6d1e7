package replay

import "errors"

var (
	// ErrScript wraps a script that cannot be read or parsed.
	ErrScript = errors.New("replay script")
	// ErrEmptyScript is returned for a script with no steps.
	ErrEmptyScript = errors.New("replay script has no steps")
)
