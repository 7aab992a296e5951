// Package storage holds the object-store client QR artifacts are uploaded
// through.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/zarlabs/zar/internal/config"
)

// ObjectStore is the narrow upload surface the QR pipeline consumes.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	PublicURL(key string) string
}

// R2Store talks to an S3-compatible bucket using the Cloudflare R2 endpoint
// convention ({account}.r2.cloudflarestorage.com).
type R2Store struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewR2Store builds the client from configuration. Callers check
// cfg.Enabled() first; this constructor assumes credentials are present.
func NewR2Store(cfg config.StorageConfig) (*R2Store, error) {
	client, err := minio.New(cfg.Endpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	return &R2Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

// Upload stores data under key with the given content type.
func (s *R2Store) Upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the browsable URL for an uploaded key, or "" when the
// bucket has no public base configured.
func (s *R2Store) PublicURL(key string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/" + key
}
