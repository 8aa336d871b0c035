package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	appErr "neurojudge/pkg/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig points at the S3-compatible store holding datasets and results.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Region    string `yaml:"region"`
}

// MinIOStorage is the production ObjectStorage.
type MinIOStorage struct {
	client *minio.Client
}

func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	required := []struct{ key, value string }{
		{"minio.endpoint", cfg.Endpoint},
		{"minio.accessKey", cfg.AccessKey},
		{"minio.secretKey", cfg.SecretKey},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, appErr.ConfigError(r.key, "required")
		}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigurationError, "minio client for %s", cfg.Endpoint)
	}
	return &MinIOStorage{client: client}, nil
}

// EnsureBucket creates bucket on first start.
func (s *MinIOStorage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return s.fail(err, bucket, "")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		// Another evaluator may have won the race.
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return s.fail(err, bucket, "")
	}
	return nil
}

// GetObject stats first so a missing key fails here rather than on the first Read.
func (s *MinIOStorage) GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error) {
	obj, err := s.client.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.fail(err, bucket, objectKey)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, s.fail(err, bucket, objectKey)
	}
	return obj, nil
}

func (s *MinIOStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if reader == nil || objectKey == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("put needs a key and a body")
	}
	_, err := s.client.PutObject(ctx, bucket, objectKey, reader, sizeBytes, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return s.fail(err, bucket, objectKey)
	}
	return nil
}

func (s *MinIOStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	info, err := s.client.StatObject(ctx, bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return ObjectStat{}, s.fail(err, bucket, objectKey)
	}
	return ObjectStat{SizeBytes: info.Size, ETag: info.ETag, ContentType: info.ContentType}, nil
}

func (s *MinIOStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo {
	out := make(chan ObjectInfo)
	go func() {
		defer close(out)
		for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			info := ObjectInfo{Key: obj.Key, SizeBytes: obj.Size, ETag: obj.ETag}
			if obj.Err != nil {
				info = ObjectInfo{Err: s.fail(obj.Err, bucket, prefix)}
			}
			select {
			case out <- info:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// fail maps 404s to ErrObjectNotFound and everything else to a storage error.
func (s *MinIOStorage) fail(err error, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return appErr.Wrapf(err, appErr.ObjectStorageError, "object storage %s/%s: %v", bucket, key, err)
}
