package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// NullCacheValue marks a remembered miss.
const NullCacheValue = "$NULL$"

// GetWithCached reads key through c, falling back to fn on a miss or an
// undecodable entry. Hits are stored for ttl and empty results for emptyTTL
// so repeated misses do not reach the source. Cache write failures are ignored.
func GetWithCached[T any](
	ctx context.Context,
	c BasicOps,
	key string,
	ttl, emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	switch cached, err := c.Get(ctx, key); {
	case err != nil || cached == "":
	case cached == NullCacheValue:
		return zero, nil
	default:
		if v, err := unmarshal(cached); err == nil {
			return v, nil
		}
	}

	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if isEmpty(v) {
		_ = c.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}
	_ = c.Set(ctx, key, marshal(v), ttl)
	return v, nil
}

// JitterTTL shortens ttl by up to 10% so entries written together do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
