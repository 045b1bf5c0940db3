package flagstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisStore keeps flags in Redis using rueidis.
type RedisStore struct {
	redis rueidis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps flags forever.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	// Parse Redis URL (redis://localhost:6379)
	opts, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	// Verify connection
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{redis: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() {
	s.redis.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Do(ctx, s.redis.B().Ping().Build()).Error()
}

// Get reads a flag through the rueidis client-side cache.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.redis.DoCache(ctx, s.redis.B().Get().Key(key).Cache(), time.Minute).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get flag: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	var cmd rueidis.Completed
	if s.ttl > 0 {
		cmd = s.redis.B().Set().Key(key).Value(value).Ex(s.ttl).Build()
	} else {
		cmd = s.redis.B().Set().Key(key).Value(value).Build()
	}
	if err := s.redis.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set flag: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Do(ctx, s.redis.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("delete flag: %w", err)
	}
	return nil
}
