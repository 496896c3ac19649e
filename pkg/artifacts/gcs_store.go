//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore reads and writes objects in Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCS client using application default credentials.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	r, err := s.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return nil, fmt.Errorf("gcs read failed for %s: %w", loc, err)
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}

func (s *GCSStore) Put(ctx context.Context, loc Location, data []byte) error {
	w := s.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

func newGCSStore(ctx context.Context) (Store, error) {
	return NewGCSStore(ctx)
}
