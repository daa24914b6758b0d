package ports

import "context"

// Cache is the unencrypted local key-value store of addresses, balances and
// transactions. Values are serialized by the implementation.
type Cache interface {
	// Get decodes the value stored under key into value and returns whether
	// the key was found.
	Get(ctx context.Context, key string, value interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}
