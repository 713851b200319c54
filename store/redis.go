package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sicko7947/flowstate"
)

// RedisBackend implements flowstate.Backend on top of a Redis server
type RedisBackend struct {
	client    redis.UniversalClient
	scanCount int64
}

// NewRedisBackend wraps an existing client. scanCount is the SCAN COUNT hint.
func NewRedisBackend(client redis.UniversalClient, scanCount int64) *RedisBackend {
	if scanCount <= 0 {
		scanCount = 100
	}
	return &RedisBackend{
		client:    client,
		scanCount: scanCount,
	}
}

// NewRedisBackendFromURL parses a redis:// URL and creates a client.
// No connection is made until the first command.
func NewRedisBackendFromURL(redisURL string, scanCount int64) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisBackend(redis.NewClient(opts), scanCount), nil
}

var _ flowstate.Backend = (*RedisBackend)(nil)

// Name returns the backend name
func (r *RedisBackend) Name() string {
	return "redis"
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, flowstate.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisBackend) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) ListPush(ctx context.Context, key, value string) (int64, error) {
	n, err := r.client.LPush(ctx, key, value).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to push onto %s: %w", key, err)
	}
	return n, nil
}

func (r *RedisBackend) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	items, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read range of %s: %w", key, err)
	}
	return items, nil
}

// Expire sets the key TTL; a non-positive ttl removes it instead of deleting the key
func (r *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var err error
	if ttl <= 0 {
		err = r.client.Persist(ctx, key).Err()
	} else {
		err = r.client.Expire(ctx, key, ttl).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return nil
}

// ScanKeys walks the keyspace with SCAN MATCH prefix*
func (r *RedisBackend) ScanKeys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := r.client.Scan(ctx, 0, prefix+"*", r.scanCount).Iterator()
		for it.Next(ctx) {
			if !yield(it.Val(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", fmt.Errorf("failed to scan %s*: %w", prefix, err))
		}
	}
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
