package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/config"
)

// MinioStore implements ObjectStore for MinIO deployments.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

var _ ObjectStore = (*MinioStore)(nil)

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.ObjectStoreConfig) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio storage: bucket is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(client.EndpointURL().String(), "/"), cfg.Bucket)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// Upload puts an object and returns its public URL.
func (m *MinioStore) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	key := strings.TrimLeft(path, "/")
	if key == "" {
		return "", apperr.Upload("store object", fmt.Errorf("minio storage: empty key"))
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", apperr.Upload("upload object", fmt.Errorf("put object: %w", err))
	}
	return fmt.Sprintf("%s/%s", m.baseURL, key), nil
}

// Delete removes an object by its public URL.
func (m *MinioStore) Delete(ctx context.Context, url string) error {
	key, ok := keyFromPublicURL(url, m.baseURL, m.bucket)
	if !ok {
		return apperr.Upload("delete object", fmt.Errorf("minio storage: url %q is outside bucket %s", url, m.bucket))
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Upload("delete object", fmt.Errorf("delete object: %w", err))
	}
	return nil
}
