package engine

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/common/storage"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	metaFileName  = "dataset-meta.json"
	tempFileName  = "dataset.tmp"
	packSuffix    = ".tar.zst"
	lockKeyPrefix = "neurojudge:dataset:lock:"
)

// datasetMeta is written next to an extracted dataset to detect staleness.
type datasetMeta struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Source  string `json:"source"`
}

type cacheEntry struct {
	key       string
	path      string
	sizeBytes int64
	expiresAt time.Time
}

// DatasetCacheConfig configures the local dataset cache.
type DatasetCacheConfig struct {
	RootDir    string        `yaml:"rootDir"`
	TTL        time.Duration `yaml:"ttl"`
	LockWait   time.Duration `yaml:"lockWait"`
	MaxEntries int           `yaml:"maxEntries"`
	MaxBytes   int64         `yaml:"maxBytes"`
}

// DatasetCache mirrors datasets from object storage onto local disk. A
// dataset is either a single {root}/{name}.tar.zst pack or the objects under
// {root}/{name}/. Downloads are serialized across processes with a lock.
type DatasetCache struct {
	cfg     DatasetCacheConfig
	bucket  string
	root    string
	storage storage.ObjectStorage
	lock    cache.LockOps

	mu        sync.Mutex
	entries   map[string]*cacheEntry
	lruKeys   []string
	totalSize int64
}

// NewDatasetCache creates a cache reading datasets under root in bucket.
func NewDatasetCache(cfg DatasetCacheConfig, bucket, root string, storageClient storage.ObjectStorage, lock cache.LockOps) *DatasetCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 16
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &DatasetCache{
		cfg:     cfg,
		bucket:  bucket,
		root:    strings.Trim(root, "/"),
		storage: storageClient,
		lock:    lock,
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the local directory holding dataset name.
func (c *DatasetCache) Get(ctx context.Context, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", appErr.ValidationError("dataset", "invalid name")
	}
	if c.storage == nil {
		return "", appErr.New(appErr.CacheError).WithMessage("storage client is not initialized")
	}
	if c.cfg.RootDir == "" {
		return "", appErr.New(appErr.CacheError).WithMessage("cache root is not configured")
	}
	dir := filepath.Join(c.cfg.RootDir, name)

	meta, err := c.remoteMeta(ctx, name)
	if err != nil {
		return "", err
	}

	if c.hitEntry(name, dir, meta) {
		return dir, nil
	}
	if c.checkDisk(dir, meta) {
		c.addEntry(name, dir)
		return dir, nil
	}
	if err := c.fetch(ctx, meta, dir); err != nil {
		return "", err
	}
	c.addEntry(name, dir)
	return dir, nil
}

func (c *DatasetCache) packKey(name string) string {
	return path.Join(c.root, name+packSuffix)
}

func (c *DatasetCache) prefix(name string) string {
	return path.Join(c.root, name) + "/"
}

// remoteMeta identifies the current remote version of a dataset.
func (c *DatasetCache) remoteMeta(ctx context.Context, name string) (datasetMeta, error) {
	stat, err := c.storage.StatObject(ctx, c.bucket, c.packKey(name))
	if err == nil {
		version := stat.ETag
		if version == "" {
			version = fmt.Sprintf("size:%d", stat.SizeBytes)
		}
		return datasetMeta{Name: name, Version: version, Source: "pack"}, nil
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		return datasetMeta{}, appErr.Wrapf(err, appErr.ObjectStorageError, "stat dataset pack failed")
	}

	hasher := sha256.New()
	n := 0
	for obj := range c.storage.ListObjects(ctx, c.bucket, c.prefix(name)) {
		if obj.Err != nil {
			return datasetMeta{}, appErr.Wrapf(obj.Err, appErr.ObjectStorageError, "list dataset failed")
		}
		fmt.Fprintf(hasher, "%s:%s:%d\n", obj.Key, obj.ETag, obj.SizeBytes)
		n++
	}
	if n == 0 {
		return datasetMeta{}, appErr.Newf(appErr.DatasetNotFound, "dataset %s not found", name)
	}
	return datasetMeta{Name: name, Version: hex.EncodeToString(hasher.Sum(nil)), Source: "objects"}, nil
}

func (c *DatasetCache) hitEntry(key, dir string, meta datasetMeta) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) || !c.checkDisk(dir, meta) {
		c.removeEntryLocked(key)
		return false
	}
	entry.expiresAt = time.Now().Add(c.cfg.TTL)
	c.touchLocked(key)
	return true
}

func (c *DatasetCache) checkDisk(dir string, meta datasetMeta) bool {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return false
	}
	var stored datasetMeta
	if err := json.Unmarshal(data, &stored); err != nil {
		return false
	}
	return stored == meta
}

func (c *DatasetCache) fetch(ctx context.Context, meta datasetMeta, dir string) error {
	if c.lock == nil {
		return appErr.New(appErr.CacheError).WithMessage("lock client is not initialized")
	}
	lockKey := lockKeyPrefix + meta.Name
	locked, err := c.lock.TryLock(ctx, lockKey, c.cfg.LockWait)
	if err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "acquire dataset lock failed")
	}
	if !locked {
		return c.waitForCache(ctx, meta, dir)
	}
	defer func() {
		_ = c.lock.Unlock(ctx, lockKey)
	}()

	if c.checkDisk(dir, meta) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "cleanup dataset dir failed")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create dataset dir failed")
	}

	start := time.Now()
	if meta.Source == "pack" {
		err = c.fetchPack(ctx, meta.Name, dir)
	} else {
		err = c.fetchObjects(ctx, meta.Name, dir)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return err
	}

	metaBytes, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(dir, metaFileName), metaBytes, 0o644); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write dataset meta failed")
	}
	logger.Info(ctx, "dataset cached",
		zap.String("dataset", meta.Name),
		zap.String("source", meta.Source),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (c *DatasetCache) waitForCache(ctx context.Context, meta datasetMeta, dir string) error {
	deadline := time.Now().Add(c.cfg.LockWait)
	for {
		if c.checkDisk(dir, meta) {
			return nil
		}
		if time.Now().After(deadline) {
			return appErr.New(appErr.Timeout).WithMessage("wait for dataset cache timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *DatasetCache) fetchPack(ctx context.Context, name, dir string) error {
	tempPath := filepath.Join(dir, tempFileName)
	if err := c.download(ctx, c.packKey(name), tempPath); err != nil {
		return err
	}
	if err := extractPack(tempPath, dir); err != nil {
		return err
	}
	_ = os.Remove(tempPath)
	return nil
}

func (c *DatasetCache) fetchObjects(ctx context.Context, name, dir string) error {
	prefix := c.prefix(name)
	for obj := range c.storage.ListObjects(ctx, c.bucket, prefix) {
		if obj.Err != nil {
			return appErr.Wrapf(obj.Err, appErr.ObjectStorageError, "list dataset failed")
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		target, err := safeJoin(dir, rel)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "create parent dir failed")
		}
		if err := c.download(ctx, obj.Key, target); err != nil {
			return err
		}
	}
	return nil
}

func (c *DatasetCache) download(ctx context.Context, key, dst string) error {
	reader, err := c.storage.GetObject(ctx, c.bucket, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatasetLoadFailed, "download %s failed", key)
	}
	defer reader.Close()

	file, err := os.Create(dst)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "create dataset file failed")
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return appErr.Wrapf(err, appErr.DatasetLoadFailed, "write dataset file failed")
	}
	return nil
}

func safeJoin(dir, name string) (string, error) {
	clean := filepath.Clean(name)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", appErr.New(appErr.DatasetCorrupted).WithMessage("invalid dataset entry path")
	}
	target := filepath.Join(dir, clean)
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(filepath.Separator)) {
		return "", appErr.New(appErr.DatasetCorrupted).WithMessage("dataset entry escape detected")
	}
	return target, nil
}

func extractPack(srcPath, dstDir string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatasetCorrupted, "open dataset pack failed")
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatasetCorrupted, "create zstd reader failed")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.DatasetCorrupted, "read tar entry failed")
		}
		if hdr.Name == "" {
			continue
		}
		target, err := safeJoin(dstDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create dir failed")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create parent dir failed")
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode)&0o755|0o600)
			if err != nil {
				return appErr.Wrapf(err, appErr.CacheError, "create file failed")
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return appErr.Wrapf(err, appErr.DatasetCorrupted, "write file failed")
			}
			_ = out.Close()
		}
	}
	return nil
}

func (c *DatasetCache) addEntry(key, dir string) {
	size := dirSize(dir)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		c.totalSize -= existing.sizeBytes
	}
	c.entries[key] = &cacheEntry{
		key:       key,
		path:      dir,
		sizeBytes: size,
		expiresAt: time.Now().Add(c.cfg.TTL),
	}
	c.totalSize += size
	c.touchLocked(key)
	c.evictLocked(key)
}

func (c *DatasetCache) touchLocked(key string) {
	for i, k := range c.lruKeys {
		if k == key {
			c.lruKeys = append(c.lruKeys[:i], c.lruKeys[i+1:]...)
			break
		}
	}
	c.lruKeys = append(c.lruKeys, key)
}

// evictLocked drops least recently used datasets, never keep.
func (c *DatasetCache) evictLocked(keep string) {
	for len(c.lruKeys) > 1 {
		over := len(c.entries) > c.cfg.MaxEntries || (c.cfg.MaxBytes > 0 && c.totalSize > c.cfg.MaxBytes)
		if !over || c.lruKeys[0] == keep {
			return
		}
		key := c.lruKeys[0]
		c.lruKeys = c.lruKeys[1:]
		c.removeEntryLocked(key)
	}
}

func (c *DatasetCache) removeEntryLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.lruKeys {
		if k == key {
			c.lruKeys = append(c.lruKeys[:i], c.lruKeys[i+1:]...)
			break
		}
	}
	c.totalSize -= entry.sizeBytes
	_ = os.RemoveAll(entry.path)
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
