package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectStore is the object-storage surface the pipeline depends on.
// Backed by MinIO in production; tests substitute in-memory stubs.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Fetch(ctx context.Context, objectName string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	PublicURL(objectName string) string
}

// Config holds MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore implements ObjectStore on a MinIO/S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	cfg    Config
	logger *zap.Logger
}

// NewMinioStore creates the client and verifies nothing; the bucket is
// checked lazily via EnsureBucket at startup.
func NewMinioStore(cfg Config, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores one object.
func (s *MinioStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		if isCredentialError(err) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// UploadText stores a small text object, used for policy documents and the
// ACTIVE marker.
func (s *MinioStore) UploadText(ctx context.Context, objectName, content string) error {
	return s.Upload(ctx, objectName, bytes.NewReader([]byte(content)), int64(len(content)), "text/plain")
}

// Fetch reads a whole object into memory.
func (s *MinioStore) Fetch(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectName, err)
	}
	return data, nil
}

// List returns the object names under a prefix, skipping the ACTIVE
// sentinel marker used to flag the current policy set.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for info := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}
		if path.Base(info.Key) == ActiveMarker {
			continue
		}
		names = append(names, info.Key)
	}
	return names, nil
}

// PublicURL builds a direct URL for an object.
func (s *MinioStore) PublicURL(objectName string) string {
	protocol := "http"
	if s.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.cfg.Endpoint, s.cfg.Bucket, objectName)
}

// ActiveMarker is the sentinel object flagging a group's active policy set.
const ActiveMarker = "ACTIVE"

// isCredentialError recognizes authentication/authorization rejections.
func isCredentialError(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return true
	}
	return strings.Contains(err.Error(), "credentials")
}
