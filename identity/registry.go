// Package identity tracks which usernames have been seen before, backed by
// the users namespace of the key-value store.
package identity

import (
	"context"
	"errors"

	"github.com/kvfeed/kvfeed/kv"
)

// Namespace is the store namespace holding one key per registered username.
const Namespace = "users"

// Registry answers "has this username posted before". Matching is byte-equal;
// case and whitespace variants are distinct users on purpose, for
// compatibility with the data already in the store.
type Registry struct {
	store kv.Store
}

func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

// IsKnown reports whether a prior Register succeeded for the exact username.
func (r *Registry) IsKnown(ctx context.Context, username string) (bool, error) {
	_, err := r.store.Get(ctx, Namespace, username)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Register records the username with the given timestamp as its value. A
// second call for the same username overwrites the timestamp; it is
// informational only and last write wins. The registry is not a source of
// truth for "actually first": two concurrent first-time requests both succeed.
func (r *Registry) Register(ctx context.Context, username, timestamp string) error {
	return r.store.Put(ctx, Namespace, username, timestamp)
}

// List returns all registered usernames, in store enumeration order.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	return r.store.ListKeys(ctx, Namespace)
}
