package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation references an id that does
	// not exist. It is always wrapped with the id.
	ErrNotFound = errors.New("clip not found")

	// ErrInvalidClip is returned when a clip violates the text-XOR-image rule.
	ErrInvalidClip = errors.New("invalid clip")
)

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func notFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}
