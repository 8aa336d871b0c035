package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject/StatObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object operations the evaluator needs: reading dataset
// files and submission metadata, and publishing rendered images and results.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// PutObject uploads size bytes read from reader.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// ListObjects streams every object under prefix. Errors are delivered in-band.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo
}

// ObjectReader is a streaming reader for object data.
type ObjectReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// ObjectStat contains object metadata.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}

// ObjectInfo is one entry produced by ListObjects.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	ETag      string
	Err       error
}

// ReadAll fetches a whole object into memory.
func ReadAll(ctx context.Context, s ObjectStorage, bucket, objectKey string) ([]byte, error) {
	r, err := s.GetObject(ctx, bucket, objectKey)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
