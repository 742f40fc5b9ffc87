package cache

import (
	"context"
	"time"
)

// Store is a JSON cache shared by the Redis and in-process backends.
// GetJSON reports false on a miss.
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Backend() string
}
