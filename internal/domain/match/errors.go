package match

import "errors"

// ErrDecode is returned when a frame is not a game event envelope.
var ErrDecode = errors.New("decode game event")
