package store

import (
	"context"
	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Store is a byte-oriented key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Op is one write of a batch. A Delete op ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Batcher applies a set of writes atomically.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}
