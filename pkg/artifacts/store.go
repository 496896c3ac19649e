// Package artifacts reads and writes release artifacts on local disk, S3 or
// GCS, and loads them as loosely structured JSON documents for gate
// evaluation.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by a Store when the addressed object does not exist.
var ErrNotFound = errors.New("artifacts: not found")

// Location addresses an artifact. Scheme is empty for local paths, in which
// case Key holds the path.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation accepts a filesystem path, s3://bucket/key or gs://bucket/key.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, errors.New("artifacts: empty location")
	}
	if !strings.Contains(raw, "://") {
		return Location{Key: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("artifacts: parse location %q: %w", raw, err)
	}
	switch u.Scheme {
	case "file":
		return Location{Key: u.Path}, nil
	case "s3", "gs":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("artifacts: location %q needs a bucket and key", raw)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
	default:
		return Location{}, fmt.Errorf("artifacts: unsupported scheme %q", u.Scheme)
	}
}

func (l Location) String() string {
	if l.Scheme == "" {
		return l.Key
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Store reads and writes whole objects.
type Store interface {
	Get(ctx context.Context, loc Location) ([]byte, error)
	Put(ctx context.Context, loc Location, data []byte) error
}

// FileStore is a filesystem-backed Store. Relative keys resolve under baseDir.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a store rooted at baseDir; empty means the working directory.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) path(loc Location) string {
	if s.baseDir == "" || filepath.IsAbs(loc.Key) {
		return filepath.Clean(loc.Key)
	}
	return filepath.Join(s.baseDir, loc.Key)
}

func (s *FileStore) Get(_ context.Context, loc Location) ([]byte, error) {
	data, err := os.ReadFile(s.path(loc)) //nolint:gosec // operator-supplied artifact path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return nil, err
	}
	return data, nil
}

// Put writes atomically: a temp file in the target directory, then rename.
// Missing parent directories are created.
func (s *FileStore) Put(_ context.Context, loc Location, data []byte) error {
	path := s.path(loc)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to ensure output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	//nolint:gosec // G302: reports are meant to be readable by CI tooling
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}
