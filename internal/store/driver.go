// Package store provides the persistence drivers behind the override store.
//
// A Driver is a minimal key-value contract: raw bytes in, raw bytes out, keys
// are opaque strings produced by the keys package. LocalStore keeps the values
// in SQLite, MemoryDriver keeps them in a map for tests and detached records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Driver is the persistence contract the override store is written against.
type Driver interface {
	// Get returns the stored bytes and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// GetJSON reads key and decodes it into T. The bool reports whether the key
// existed; a missing key yields the zero T.
func GetJSON[T any](ctx context.Context, d Driver, key string) (T, bool, error) {
	var out T
	raw, ok, err := d.Get(ctx, key)
	if err != nil {
		return out, false, err
	}
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON[T any](ctx context.Context, d Driver, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return d.Set(ctx, key, raw)
}
