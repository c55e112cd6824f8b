// Package kv provides a uniform adapter over an external, namespace
// partitioned, eventually consistent key-value store. The only guarantee
// relied on anywhere is per-key last-write-wins; callers must not assume
// read-after-write consistency or any ordering from ListKeys beyond what is
// encoded in the key strings themselves.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps any network or store failure. Callers surface it
	// as a server error; an operation that fails is never silently dropped.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the get/put/delete/list contract over one store instance.
// Namespaces partition the key space; a key is unique within its namespace.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, error)
	Put(ctx context.Context, namespace, key, value string) error
	// Delete is idempotent: deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error
	// ListKeys returns the key names of a namespace in no particular order.
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}
