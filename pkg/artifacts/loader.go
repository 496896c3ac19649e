package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuilabs/aios/pkg/gate"
)

// DefaultCacheSize bounds the number of parsed documents held by a Loader.
const DefaultCacheSize = 64

// Loader resolves locations to parsed artifacts. It never fails: an absent
// artifact and a malformed one both yield nil, the latter with a warning.
// Results are cached per location so gates sharing a document parse it once.
type Loader struct {
	store  Store
	cache  *lru.Cache[string, *gate.Artifact]
	logger *slog.Logger
}

// NewLoader wraps store with an LRU cache of cacheSize entries.
func NewLoader(store Store, cacheSize int) *Loader {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, *gate.Artifact](cacheSize) // errors only on size <= 0
	return &Loader{
		store:  store,
		cache:  cache,
		logger: slog.Default().With("component", "artifacts"),
	}
}

// WithLogger sets the logger used for parse warnings.
func (l *Loader) WithLogger(logger *slog.Logger) *Loader {
	l.logger = logger.With("component", "artifacts")
	return l
}

// Load implements gate.Loader.
func (l *Loader) Load(ctx context.Context, location string) *gate.Artifact {
	if location == "" {
		return nil
	}
	if a, ok := l.cache.Get(location); ok {
		return a
	}
	a := l.load(ctx, location)
	l.cache.Add(location, a)
	return a
}

func (l *Loader) load(ctx context.Context, location string) *gate.Artifact {
	loc, err := ParseLocation(location)
	if err != nil {
		l.logger.WarnContext(ctx, "artifact: invalid location", "location", location, "error", err)
		return nil
	}

	data, err := l.store.Get(ctx, loc)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.logger.WarnContext(ctx, "artifact: failed to read", "location", location, "error", err)
		}
		return nil
	}

	doc, err := Parse(data)
	if err != nil {
		l.logger.WarnContext(ctx, "artifact: failed to parse", "location", location, "error", err)
		return nil
	}
	return &gate.Artifact{Location: location, Data: doc}
}

// Parse decodes a single JSON object. Numbers are kept as json.Number.
func Parse(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level is %T, not an object", v)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after document")
	}
	return doc, nil
}
