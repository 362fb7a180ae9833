package storage

import "errors"

// ErrNotFound is returned when a generation does not exist.
var ErrNotFound = errors.New("generation not found")
