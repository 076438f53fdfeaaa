package cache

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioStore is a BlobStore backed by an S3-compatible object store, for
// sharing the cache between coordinator runs on different hosts.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore returns an object-store-backed blob store writing to the
// given bucket.
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// Get implements BlobStore.
func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put implements BlobStore.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/gzip"})
	return err
}
