package service

import (
	"errors"
	"fmt"
)

// ErrOfferNotFound is returned by Get and Replace for an unknown offer id.
var ErrOfferNotFound = errors.New("offer not found")

// StoreError wraps a failed store call. The cause is kept for errors.Is, so
// callers can still tell store.ErrUnavailable apart.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
