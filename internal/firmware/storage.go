package firmware

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/log"
)

// Storage hands out firmware objects by key.
type Storage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

type MinIOStorage struct {
	client     *minio.Client
	bucketName string
}

func NewMinIOStorage(cfg *config.Config) (*MinIOStorage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOStorage{
		client:     client,
		bucketName: cfg.FirmwareBucket,
	}, nil
}

// CheckBucket only warns: a missing bucket means every update request gets
// a 404, which the device tolerates.
func (s *MinIOStorage) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Warn("Firmware bucket does not exist", "bucket", s.bucketName)
	}
	return nil
}

func (s *MinIOStorage) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, s.mapError(key, err)
	}

	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, s.mapError(key, err)
	}
	return obj, info.Size, nil
}

func (s *MinIOStorage) mapError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s/%s: %w", s.bucketName, key, ErrNotFound)
	}
	return fmt.Errorf("open firmware %s/%s: %w", s.bucketName, key, err)
}
