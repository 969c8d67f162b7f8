package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no document matches a lookup by id or
	// username. Callers map it to 404.
	ErrNotFound = errors.New("document not found")

	// ErrSessionNotFound is returned when a session record does not exist,
	// either because it was destroyed or because its TTL elapsed.
	ErrSessionNotFound = errors.New("session not found or expired")
)

// StoreError wraps a failure of the backing store (connectivity, write
// conflicts, aborted transactions). It is never a client error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapStoreError tags err with op. Sentinel lookup errors pass through
// untouched so callers can still match them with errors.Is.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrSessionNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
