package cache

import (
	"context"
	"time"
)

// BytesCache is a plain key/value store with expiry. Values are opaque.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
