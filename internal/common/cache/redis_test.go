package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	appErr "neurojudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	return c, mr
}

func TestRedisCacheHSetNX(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	created, err := c.HSetNX(ctx, "status:1", "id", 1)
	if err != nil || !created {
		t.Fatalf("expected first HSetNX to create, got %v %v", created, err)
	}
	created, err = c.HSetNX(ctx, "status:1", "id", 2)
	if err != nil || created {
		t.Fatalf("expected second HSetNX to be a no-op, got %v %v", created, err)
	}
	doc, err := c.HGetAll(ctx, "status:1")
	if err != nil || doc["id"] != "1" {
		t.Fatalf("unexpected doc: %v %v", doc, err)
	}
	missing, err := c.Get(ctx, "status:2")
	if err != nil || missing != "" {
		t.Fatalf("expected empty value for missing key, got %q %v", missing, err)
	}
}

func TestRedisCacheLock(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, got %v %v", ok, err)
	}
	ok, err = c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected lock held, got %v %v", ok, err)
	}
	mr.FastForward(2 * time.Minute)
	ok, err = c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock after expiry, got %v %v", ok, err)
	}
	if err := c.ExtendLock(ctx, "lock:a", time.Hour); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if ttl := mr.TTL("lock:a"); ttl != time.Hour {
		t.Fatalf("extended ttl = %v", ttl)
	}
	if err := c.Unlock(ctx, "lock:a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if err := c.ExtendLock(ctx, "lock:a", time.Hour); !appErr.Is(err, appErr.LockFailed) {
		t.Fatalf("extending a released lock should fail, got %v", err)
	}
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := DialRedis(ctx, RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, err := DialRedis(ctx, RedisConfig{}); !appErr.Is(err, appErr.ConfigurationError) {
		t.Fatalf("missing addr should be a config error, got %v", err)
	}
	if _, err := DialRedis(ctx, RedisConfig{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond}); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("unreachable redis should be a cache error, got %v", err)
	}
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := GetWithCached(ctx, c, "answer", time.Minute, time.Second,
			func(v int) bool { return v == 0 },
			strconv.Itoa,
			strconv.Atoi,
			fetch)
		if err != nil || v != 42 {
			t.Fatalf("unexpected value %d %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := time.Hour
	for i := 0; i < 10; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatal("zero ttl should stay zero")
	}
}
