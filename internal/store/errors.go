package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped in a WriteError when an update matches no rows.
var ErrNotFound = errors.New("no rows affected")

// ErrEmptyPatch is returned for updates with nothing to change.
var ErrEmptyPatch = errors.New("empty patch")

// ReadError wraps a backend failure on the read path.
type ReadError struct {
	Op    string
	Table string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store read %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError wraps a backend failure on the write path.
type WriteError struct {
	Op    string
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an update that matched no rows.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
