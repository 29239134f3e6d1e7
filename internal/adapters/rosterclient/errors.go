package rosterclient

import "errors"

// ErrUnexpectedStatus is returned for a response status the surface does not
// define.
var ErrUnexpectedStatus = errors.New("unexpected status")
