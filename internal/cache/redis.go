package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aspl-project/aspl/internal/article"
)

const redisKeyPrefix = "aspl:article:"

// RedisStore persists entries in Redis. TTL enforcement is delegated to
// Redis expiry, so Get never observes an expired entry.
type RedisStore struct {
	client *redis.Client
	clock  article.Clock
}

// NewRedisStore builds a RedisStore from a Redis URL
// (e.g. redis://localhost:6379/0).
func NewRedisStore(redisURL string, clock article.Clock) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), clock: clock}, nil
}

// Ping verifies connectivity; used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get fetches and decodes the entry for url.
func (s *RedisStore) Get(ctx context.Context, url string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+url).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

// Set stores the entry with expiry derived from ExpiresAt. A single SET with
// EX replaces any prior value atomically; there is no read-modify-write.
func (s *RedisStore) Set(ctx context.Context, entry Entry) error {
	ttl := entry.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		ttl = time.Second
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+entry.URL, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the entry for url.
func (s *RedisStore) Delete(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+url).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
