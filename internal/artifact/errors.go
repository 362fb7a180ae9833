package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a named artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidName is returned for names that are not a plain image file
	// name inside the store directory.
	ErrInvalidName = errors.New("invalid artifact name")
)

// StorageError reports a failed filesystem operation on the artifact directory.
type StorageError struct {
	Op   string // "mkdir", "write", "list", "stat", "remove", "open"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("artifact %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
