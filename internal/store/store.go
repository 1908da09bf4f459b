// Package store defines the key-value object store the offer service
// persists into. Backends live in the subpackages.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable marks failures to reach the backend at all.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Store is a flat key-value store of opaque values. Delete of a missing key
// is not an error. Keys returns every key in the store's own order.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
