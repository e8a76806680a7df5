package grading

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore reads submission files from an S3-compatible object store.
type MinioStore struct {
	Client *minio.Client
}

// NewMinioStore connects to endpoint with static credentials.
func NewMinioStore(endpoint, accessKey, secretKey string, secure bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{Client: client}, nil
}

// GetObject reads an object up to maxSize bytes.
func (m *MinioStore) GetObject(ctx context.Context, bucket, key string, maxSize int64) ([]byte, string, error) {
	obj, err := m.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", err
	}
	if info.Size > maxSize {
		return nil, "", fmt.Errorf("object %s/%s is %d bytes, limit %d", bucket, key, info.Size, maxSize)
	}
	data, err := readLimited(obj, maxSize)
	if err != nil {
		return nil, "", err
	}
	return data, info.ContentType, nil
}
