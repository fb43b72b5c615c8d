package objectstore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"greek-asr-platform/backend/internal/config"
)

// ObjectStore is the slice of object storage the orchestration layer
// needs: put audio in, get audio bytes out.
type ObjectStore interface {
	UploadFile(ctx context.Context, originalFilename string, reader io.Reader, size int64, contentType string) (string, error)
	GetFileBytes(ctx context.Context, objectName string) ([]byte, error)
	DeleteFile(ctx context.Context, objectName string) error
}

// MinioClient wraps a MinIO connection scoped to one bucket.
type MinioClient struct {
	client     *minio.Client
	bucketName string
	log        *logrus.Entry
}

// NewMinioClient connects to MinIO and ensures the bucket exists.
func NewMinioClient(ctx context.Context, cfg config.MinioConfig, log *logrus.Logger) (*MinioClient, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("minio endpoint and bucket name must be configured")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if MinIO bucket %q exists: %w", cfg.BucketName, err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create MinIO bucket %q: %w", cfg.BucketName, err)
		}
		log.WithField("bucket", cfg.BucketName).Info("created MinIO bucket")
	}

	return &MinioClient{
		client:     client,
		bucketName: cfg.BucketName,
		log:        log.WithField("component", "objectstore"),
	}, nil
}

// UploadFile stores a file under a generated unique object name,
// preserving the original extension, and returns the object name.
func (mc *MinioClient) UploadFile(ctx context.Context, originalFilename string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := uuid.New().String() + filepath.Ext(originalFilename)

	info, err := mc.client.PutObject(ctx, mc.bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %q to MinIO: %w", objectName, err)
	}

	mc.log.WithFields(logrus.Fields{
		"object": objectName,
		"size":   info.Size,
	}).Info("uploaded audio file")
	return objectName, nil
}

// GetFileBytes reads a whole object into memory. Audio clips are small
// enough for this to be acceptable.
func (mc *MinioClient) GetFileBytes(ctx context.Context, objectName string) ([]byte, error) {
	object, err := mc.client.GetObject(ctx, mc.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q from bucket %q: %w", objectName, mc.bucketName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q data: %w", objectName, err)
	}
	return data, nil
}

// DeleteFile removes an object from the bucket.
func (mc *MinioClient) DeleteFile(ctx context.Context, objectName string) error {
	if err := mc.client.RemoveObject(ctx, mc.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %q from bucket %q: %w", objectName, mc.bucketName, err)
	}
	mc.log.WithField("object", objectName).Info("deleted object")
	return nil
}
