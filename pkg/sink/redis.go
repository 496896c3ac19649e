package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cuilabs/aios/pkg/gate"
)

// Publisher announces a finished report to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, r *gate.Report) error
}

// RedisPublisher appends reports to a Redis stream.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher creates a publisher backed by Redis.
func NewRedisPublisher(addr, password string, db int, stream string) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: rdb, stream: stream, maxLen: 1000}
}

// Publish XADDs the report, trimming the stream to roughly maxLen entries.
func (p *RedisPublisher) Publish(ctx context.Context, r *gate.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"run_id":  r.RunID,
			"release": r.Release,
			"passed":  r.OverallPassed(),
			"report":  string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
