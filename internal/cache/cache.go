// Package cache stores pipeline results keyed by operation and arguments.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultExpiry is how long a result stays valid.
const DefaultExpiry = 7 * 24 * time.Hour

// Entry is a cached result and the time it was stored.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Valid reports whether the entry is still fresh at now.
func (e Entry) Valid(now time.Time, expiry time.Duration) bool {
	return now.Sub(e.Timestamp) <= expiry
}

// Store is a result cache backend. Get returns ok=false for missing or
// expired entries; expired entries are removed on read.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, data json.RawMessage) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key derives the cache key for an operation and its arguments:
// operation + ":" + JSON(args). encoding/json emits struct fields in
// declaration order and map keys sorted, so equal arguments give equal keys.
func Key(operation string, args interface{}) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode cache key for %s: %w", operation, err)
	}
	return operation + ":" + string(encoded), nil
}
