package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage is an in-process ObjectStorage used by local runs and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func memoryKey(bucket, objectKey string) string {
	return bucket + "/" + objectKey
}

func (m *MemoryStorage) GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error) {
	m.mu.RLock()
	obj, ok := m.objects[memoryKey(bucket, objectKey)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, objectKey, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if objectKey == "" {
		return fmt.Errorf("objectKey is required")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read object body failed: %w", err)
	}
	m.mu.Lock()
	m.objects[memoryKey(bucket, objectKey)] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	m.mu.RLock()
	obj, ok := m.objects[memoryKey(bucket, objectKey)]
	m.mu.RUnlock()
	if !ok {
		return ObjectStat{}, fmt.Errorf("%s/%s: %w", bucket, objectKey, ErrObjectNotFound)
	}
	return ObjectStat{SizeBytes: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *MemoryStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo {
	m.mu.RLock()
	var infos []ObjectInfo
	full := memoryKey(bucket, prefix)
	for k, obj := range m.objects {
		if strings.HasPrefix(k, full) {
			infos = append(infos, ObjectInfo{Key: strings.TrimPrefix(k, bucket+"/"), SizeBytes: int64(len(obj.data))})
		}
	}
	m.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	out := make(chan ObjectInfo, len(infos))
	for _, info := range infos {
		out <- info
	}
	close(out)
	return out
}
