package presentation

import "errors"

// ErrEmptyMessage is returned when a chat message has no text.
var ErrEmptyMessage = errors.New("empty chat message")
