package artifacts

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Router dispatches each Location to a Store chosen by scheme. Remote clients
// are created on first use so local-only runs never touch cloud credentials.
type Router struct {
	mu     sync.Mutex
	stores map[string]Store
	open   map[string]func(ctx context.Context) (Store, error)
}

// NewRouter returns a Router serving local paths from baseDir, s3:// through
// the AWS default credential chain and gs:// when built with -tags gcp.
//
// Environment variables:
//   - AWS_REGION or ARTIFACT_S3_REGION (default us-east-1)
//   - ARTIFACT_S3_ENDPOINT (optional, for MinIO/LocalStack)
func NewRouter(baseDir string) *Router {
	return &Router{
		stores: map[string]Store{"": NewFileStore(baseDir)},
		open: map[string]func(ctx context.Context) (Store, error){
			"s3": newS3StoreFromEnv,
			"gs": newGCSStore,
		},
	}
}

// WithStore installs a fixed store for scheme, replacing lazy construction.
func (r *Router) WithStore(scheme string, s Store) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[scheme] = s
	return r
}

func (r *Router) store(ctx context.Context, scheme string) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[scheme]; ok {
		return s, nil
	}
	open, ok := r.open[scheme]
	if !ok {
		return nil, fmt.Errorf("artifacts: no store for scheme %q", scheme)
	}
	s, err := open(ctx)
	if err != nil {
		return nil, err
	}
	r.stores[scheme] = s
	return s, nil
}

func (r *Router) Get(ctx context.Context, loc Location) ([]byte, error) {
	s, err := r.store(ctx, loc.Scheme)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, loc)
}

func (r *Router) Put(ctx context.Context, loc Location, data []byte) error {
	s, err := r.store(ctx, loc.Scheme)
	if err != nil {
		return err
	}
	return s.Put(ctx, loc, data)
}

func newS3StoreFromEnv(ctx context.Context) (Store, error) {
	region := os.Getenv("ARTIFACT_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return NewS3Store(ctx, S3StoreConfig{
		Region:   region,
		Endpoint: os.Getenv("ARTIFACT_S3_ENDPOINT"),
	})
}
