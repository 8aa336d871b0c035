package cache

import (
	"context"
	"errors"
	"time"

	appErr "neurojudge/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// RedisConfig is the redis: block of the evaluator config. Zero durations and
// sizes are replaced by withDefaults.
type RedisConfig struct {
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	MaxRetries      int           `yaml:"maxRetries"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	PoolSize        int           `yaml:"poolSize"`
	MinIdleConns    int           `yaml:"minIdleConns"`
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 8
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 1
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	return c
}

func (c RedisConfig) options() *redis.Options {
	c = c.withDefaults()
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		MaxRetries:      c.MaxRetries,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// RedisCache is the go-redis backed Cache.
type RedisCache struct {
	client *redis.Client
}

// DialRedis connects and pings before returning.
func DialRedis(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, appErr.ConfigError("redis.addr", "required")
	}
	client := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, appErr.Wrapf(err, appErr.CacheError, "ping redis %s failed", cfg.Addr)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient adopts an existing client; tests hand in one bound to miniredis.
func NewRedisCacheWithClient(client *redis.Client) (*RedisCache, error) {
	if client == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("redis client is nil")
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }
func (r *RedisCache) Close() error                   { return r.client.Close() }

// nilAsEmpty turns redis.Nil into a zero value.
func nilAsEmpty(v string, err error) (string, error) {
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return nilAsEmpty(r.client.Get(ctx, key).Result())
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *RedisCache) HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error) {
	return r.client.HSetNX(ctx, key, field, value).Result()
}

func (r *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *RedisCache) HMSet(ctx context.Context, key string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.client.HSet(ctx, key, fields).Err()
}

func (r *RedisCache) HExists(ctx context.Context, key, field string) (bool, error) {
	return r.client.HExists(ctx, key, field).Result()
}

func (r *RedisCache) SAdd(ctx context.Context, key string, members ...interface{}) error {
	if len(members) == 0 {
		return nil
	}
	return r.client.SAdd(ctx, key, members...).Err()
}

func (r *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

// Locks are plain SETNX keys; the holder is whoever created them.

func (r *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
}

func (r *RedisCache) Unlock(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) ExtendLock(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return appErr.Newf(appErr.LockFailed, "lock %s is no longer held", key)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
