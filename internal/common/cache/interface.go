package cache

import (
	"context"
	"time"
)

// Cache is everything the evaluator asks of Redis. Status documents are
// hashes, the tracked id index is a set, and the run loop and dataset
// downloads serialize through locks.
type Cache interface {
	BasicOps
	HashOps
	SetOps
	LockOps

	Ping(ctx context.Context) error
	Close() error
}

// BasicOps covers string keys: memoized lookups and rate-limit counters.
type BasicOps interface {
	// Get returns "" for a missing key.
	Get(ctx context.Context, key string) (string, error)
	// Set with ttl 0 never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	// TTL is negative when the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type HashOps interface {
	// HSetNX reports whether field was created.
	HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HMSet(ctx context.Context, key string, fields map[string]interface{}) error
	HExists(ctx context.Context, key, field string) (bool, error)
}

type SetOps interface {
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// LockOps is a single-holder lease keyed by name.
type LockOps interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	// ExtendLock renews the lease of a lock the caller already holds.
	ExtendLock(ctx context.Context, key string, ttl time.Duration) error
}
