// Package kvcache provides the TTL key-value caches used for discovery
// results and taste profiles.
package kvcache

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Cache stores opaque values with a time-to-live. Get reports a miss with
// ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GetJSON decodes the value under key into v. A value that fails to decode
// is reported as a miss.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v and stores it under key for ttl.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
