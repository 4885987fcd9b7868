// Package store holds the persisted process-wide state of go_tube: typed
// settings (key rotation index, quota usage, cache TTL) over a flat
// key-value backend, and the secret store that carries the API keys.
package store

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by stores that cannot be written at runtime.
var ErrReadOnly = errors.New("store is read-only")

// KV is a flat string key-value store. Each Set is atomic for its key;
// there are no transactions across keys.
type KV interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
	Close() error
}
