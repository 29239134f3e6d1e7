package service

import "errors"

// ErrNotStarted is returned by operations that need Start first.
var ErrNotStarted = errors.New("session not started")
