package kvstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is a string-keyed byte store with optional per-key expiry.
// A ttl of zero means the key never expires on its own.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

type namespaced struct {
	store  Store
	prefix string
}

// Namespace scopes every key of store under prefix. Closing the returned
// store does not close the underlying one.
func Namespace(store Store, prefix string) Store {
	if ns, ok := store.(*namespaced); ok {
		return &namespaced{store: ns.store, prefix: ns.prefix + prefix}
	}
	return &namespaced{store: store, prefix: prefix}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.store.Set(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = n.prefix + k
	}
	return n.store.Delete(ctx, full...)
}

func (n *namespaced) DeletePrefix(ctx context.Context, prefix string) error {
	return n.store.DeletePrefix(ctx, n.prefix+prefix)
}

func (n *namespaced) Close() error { return nil }
