package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by CacheProvider.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for key/value storage with expiry
type CacheProvider interface {
	// Get retrieves a value, returning ErrCacheMiss when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration; zero means no expiry
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)
}
