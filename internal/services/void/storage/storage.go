// Package storage defines the durable key-value capability the room persists
// shared object state through.
//
// Backends live in subpackages (memory, sqlite, bbolt, redis, postgres) and
// all store opaque byte values under string keys with whole-value overwrite.
//
// # Error Types
//
//   - ErrNotFound: the key has never been written.
//   - ErrClosed: the backend handle is gone; retrying cannot succeed.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrClosed indicates the backend was closed or lost for good.
var ErrClosed = errors.New("storage is closed")

// KV is the durable record store used by the object store.
type KV interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
	// Close releases the backend handle.
	Close() error
}

// NormalizeKey trims a record key and reports whether it is usable.
func NormalizeKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	return key, key != ""
}
