package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/vistry-ai/vistry/internal/domain"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Store wraps a MinIO client as the pipeline's object store: discrete gets
// and puts, presigned GET URLs, and object-created notifications.
type Store struct {
	client *minio.Client
	logger *zap.Logger
}

// New creates an object store client.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Store{client: client, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}

// Get reads the full object at bucket/key.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Put writes body to bucket/key as one discrete overwrite-put, so repeated
// deliveries of the same derived object are harmless.
func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// SignedURL issues a time-limited GET URL for bucket/key.
func (s *Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// Listen streams object-created events for a bucket, filtered by key prefix
// and suffix, until ctx is cancelled. Listener errors are logged and the
// stream resumes; duplicate delivery is expected and consumers must be
// idempotent.
func (s *Store) Listen(ctx context.Context, bucket, prefix, suffix string, out chan<- domain.ObjectEvent) {
	events := []string{"s3:ObjectCreated:*"}

	for info := range s.client.ListenBucketNotification(ctx, bucket, prefix, suffix, events) {
		if info.Err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("bucket notification error",
				zap.String("bucket", bucket),
				zap.Error(info.Err),
			)
			continue
		}

		for _, record := range info.Records {
			ev := domain.ObjectEvent{
				Bucket: record.S3.Bucket.Name,
				Key:    domain.DecodeEventKey(record.S3.Object.Key),
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
