// Package gcs provides a snapshot archive backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/logging"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// BlobStore writes snapshots to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	owned  bool
}

// New creates a GCS-backed blob store around an existing client. The caller
// keeps ownership of the client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// Connect builds a client via Application Default Credentials and verifies the
// bucket is reachable, failing fast on startup misconfiguration.
func Connect(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("failed to close storage client after bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, owned: true}, nil
}

// Save uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) Save(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", fmt.Errorf("object name is required")
	}
	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Close releases the client when this store created it.
func (s *BlobStore) Close() {
	if !s.owned || s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		logging.L.Warn("failed to close storage client", zap.Error(err))
	}
}
