package repository

import (
	"context"
	"sort"
	"sync"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

// MemoryCollection keeps status documents in process memory.
type MemoryCollection struct {
	mu   sync.Mutex
	docs map[int64]model.StatusRecord
}

func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{docs: make(map[int64]model.StatusRecord)}
}

func (c *MemoryCollection) FindOne(ctx context.Context, id int64) (model.StatusRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.docs[id]
	return rec, ok, nil
}

func (c *MemoryCollection) InsertOne(ctx context.Context, rec model.StatusRecord) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[rec.ID]; ok {
		return false, nil
	}
	c.docs[rec.ID] = rec
	return true, nil
}

func (c *MemoryCollection) UpdateOne(ctx context.Context, id int64, set Update) error {
	if err := checkUpdate(set); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.docs[id]
	if !ok {
		return appErr.Newf(appErr.StatusNotFound, "status %d not found", id)
	}
	applyUpdate(&rec, set)
	c.docs[id] = rec
	return nil
}

func (c *MemoryCollection) IDs(ctx context.Context) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

var _ Collection = (*MemoryCollection)(nil)
