package repository

import (
	"context"
	"sort"
	"strconv"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

const (
	statusKeyPrefix = "neurojudge:status:"
	statusIndexKey  = "neurojudge:status:ids"
)

// RedisCollection stores each status document as a Redis hash.
type RedisCollection struct {
	cache cache.Cache
}

// NewRedisCollection creates a Redis-backed collection.
func NewRedisCollection(cacheClient cache.Cache) *RedisCollection {
	return &RedisCollection{cache: cacheClient}
}

func statusKey(id int64) string {
	return statusKeyPrefix + strconv.FormatInt(id, 10)
}

func (c *RedisCollection) FindOne(ctx context.Context, id int64) (model.StatusRecord, bool, error) {
	if c.cache == nil {
		return model.StatusRecord{}, false, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	fields, err := c.cache.HGetAll(ctx, statusKey(id))
	if err != nil {
		return model.StatusRecord{}, false, appErr.Wrapf(err, appErr.CacheError, "load status %d failed", id)
	}
	if len(fields) == 0 {
		return model.StatusRecord{}, false, nil
	}
	rec, err := parseRecord(fields)
	if err != nil {
		return model.StatusRecord{}, false, appErr.Wrapf(err, appErr.CacheError, "decode status %d failed", id)
	}
	return rec, true, nil
}

// InsertOne claims the id field with HSETNX so concurrent inserts create the
// document once; the remaining fields hold defaults and are filled right after.
func (c *RedisCollection) InsertOne(ctx context.Context, rec model.StatusRecord) (bool, error) {
	if c.cache == nil {
		return false, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	key := statusKey(rec.ID)
	created, err := c.cache.HSetNX(ctx, key, model.FieldID, rec.ID)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "insert status %d failed", rec.ID)
	}
	if !created {
		return false, nil
	}
	fields := recordFields(rec)
	delete(fields, model.FieldID)
	if err := c.cache.HMSet(ctx, key, fields); err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "insert status %d failed", rec.ID)
	}
	if err := c.cache.SAdd(ctx, statusIndexKey, rec.ID); err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "index status %d failed", rec.ID)
	}
	return true, nil
}

// UpdateOne writes every field of set with a single HSET.
func (c *RedisCollection) UpdateOne(ctx context.Context, id int64, set Update) error {
	if err := checkUpdate(set); err != nil {
		return err
	}
	if c.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	key := statusKey(id)
	exists, err := c.cache.HExists(ctx, key, model.FieldID)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "update status %d failed", id)
	}
	if !exists {
		return appErr.Newf(appErr.StatusNotFound, "status %d not found", id)
	}
	fields := make(map[string]interface{}, len(set))
	for k, v := range set {
		fields[k] = encodeValue(v)
	}
	if err := c.cache.HMSet(ctx, key, fields); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "update status %d failed", id)
	}
	return nil
}

func (c *RedisCollection) IDs(ctx context.Context) ([]int64, error) {
	if c.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	members, err := c.cache.SMembers(ctx, statusIndexKey)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list status ids failed")
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

var _ Collection = (*RedisCollection)(nil)
