// Package storage resolves sequence step media held in S3-compatible
// object storage.
package storage

import (
	"context"
	"fmt"
	"time"

	"zapflow_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultURLTTL applies when a caller passes a non-positive ttl.
const DefaultURLTTL = time.Hour

// PresignedURL is a time-limited GET link to one object.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StorageService is what the media resolver needs from object storage.
type StorageService interface {
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string, ttl time.Duration) (*PresignedURL, error)
	ContentType(ctx context.Context, bucket, fileKey string) (string, error)
	EnsureBucketExists(ctx context.Context, bucket string) error
}

// MinIOService implements StorageService against MinIO or any S3 endpoint.
type MinIOService struct {
	client *minio.Client
	now    func() time.Time
}

var _ StorageService = (*MinIOService)(nil)

func NewMinIOService(cfg config.MinIOConfig) (*MinIOService, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinIOService{client: client, now: time.Now}, nil
}

// EnsureBucketExists is called once at startup with retries.
func (s *MinIOService) EnsureBucketExists(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	switch {
	case err != nil:
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	case exists:
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *MinIOService) GenerateDownloadURL(ctx context.Context, bucket, fileKey string, ttl time.Duration) (*PresignedURL, error) {
	if err := ValidateObjectKey(fileKey); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	u, err := s.client.PresignedGetObject(ctx, bucket, fileKey, ttl, nil)
	if err != nil {
		return nil, fmt.Errorf("presign %s/%s: %w", bucket, fileKey, err)
	}
	return &PresignedURL{URL: u.String(), FileKey: fileKey, ExpiresAt: s.now().Add(ttl)}, nil
}

// ContentType reads the object's stored Content-Type without downloading it.
func (s *MinIOService) ContentType(ctx context.Context, bucket, fileKey string) (string, error) {
	info, err := s.client.StatObject(ctx, bucket, fileKey, minio.StatObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("stat %s/%s: %w", bucket, fileKey, err)
	}
	return info.ContentType, nil
}
