package auth

import (
	"context"
	"fmt"
	"time"

	"neurojudge/internal/common/cache"
	appErr "neurojudge/pkg/errors"
)

// RateLimiter enforces fixed-window limits using Redis.
type RateLimiter struct {
	cache        cache.BasicOps
	window       time.Duration
	redisTimeout time.Duration
}

func NewRateLimiter(cacheClient cache.BasicOps, window, redisTimeout time.Duration) *RateLimiter {
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &RateLimiter{cache: cacheClient, window: window, redisTimeout: redisTimeout}
}

func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = l.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	var count int64 = 1
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// Repair keys that lost their expiry
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return appErr.New(appErr.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}
