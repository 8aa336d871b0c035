package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"

	"github.com/dgraph-io/badger/v4"
)

const badgerStatusPrefix = "status/"

// BadgerConfig configures the embedded status store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"inMemory"`
	SyncWrites bool   `yaml:"syncWrites"`
}

// OpenBadger opens (creating when needed) a badger database.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent store")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// BadgerCollection stores each status document as a JSON value in badger.
// Updates run in a read-modify-write transaction.
type BadgerCollection struct {
	db *badger.DB
}

func NewBadgerCollection(db *badger.DB) *BadgerCollection {
	return &BadgerCollection{db: db}
}

func badgerKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", badgerStatusPrefix, id))
}

func readBadgerRecord(txn *badger.Txn, id int64) (model.StatusRecord, bool, error) {
	item, err := txn.Get(badgerKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.StatusRecord{}, false, nil
	}
	if err != nil {
		return model.StatusRecord{}, false, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return model.StatusRecord{}, false, err
	}
	var rec model.StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.StatusRecord{}, false, err
	}
	return rec, true, nil
}

func writeBadgerRecord(txn *badger.Txn, rec model.StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(badgerKey(rec.ID), data)
}

func (c *BadgerCollection) FindOne(ctx context.Context, id int64) (model.StatusRecord, bool, error) {
	var (
		rec   model.StatusRecord
		found bool
	)
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		rec, found, err = readBadgerRecord(txn, id)
		return err
	})
	if err != nil {
		return model.StatusRecord{}, false, appErr.Wrapf(err, appErr.DatabaseError, "load status %d failed", id)
	}
	return rec, found, nil
}

func (c *BadgerCollection) InsertOne(ctx context.Context, rec model.StatusRecord) (bool, error) {
	inserted := false
	err := c.db.Update(func(txn *badger.Txn) error {
		_, found, err := readBadgerRecord(txn, rec.ID)
		if err != nil || found {
			return err
		}
		inserted = true
		return writeBadgerRecord(txn, rec)
	})
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "insert status %d failed", rec.ID)
	}
	return inserted, nil
}

func (c *BadgerCollection) UpdateOne(ctx context.Context, id int64, set Update) error {
	if err := checkUpdate(set); err != nil {
		return err
	}
	missing := false
	err := c.db.Update(func(txn *badger.Txn) error {
		rec, found, err := readBadgerRecord(txn, id)
		if err != nil {
			return err
		}
		if !found {
			missing = true
			return nil
		}
		applyUpdate(&rec, set)
		return writeBadgerRecord(txn, rec)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update status %d failed", id)
	}
	if missing {
		return appErr.Newf(appErr.StatusNotFound, "status %d not found", id)
	}
	return nil
}

func (c *BadgerCollection) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerStatusPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), badgerStatusPrefix)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list status ids failed")
	}
	return ids, nil
}

var _ Collection = (*BadgerCollection)(nil)
