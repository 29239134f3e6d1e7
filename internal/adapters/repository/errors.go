package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for roster store errors.
var (
	ErrNotFound = errors.New("not found")
	// ErrNoRoster is returned when the user has no roster. It matches
	// ErrNotFound with errors.Is.
	ErrNoRoster = fmt.Errorf("no roster: %w", ErrNotFound)
)
