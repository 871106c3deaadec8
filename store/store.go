// Package store defines the device-local key/value medium the session is persisted to.
// Each session field lives under its own key so a partially written record can still be
// read field by field.
package store

import (
	"context"

	apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"
)

// ErrNotFound is returned by Get for a key that has no value.
var ErrNotFound = apperrors.ErrNotFound

// Store is a namespaced string key/value store that outlives the process.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put writes every item. Implementations write all items or none where the medium allows.
	Put(ctx context.Context, items map[string]string) error

	// Delete removes keys. Keys without a value are ignored.
	Delete(ctx context.Context, keys ...string) error
}
