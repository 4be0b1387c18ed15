package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tolk:user:"

// RedisStorage keeps session values in a Redis hash per key, expiring the
// whole hash after the session TTL.
type RedisStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStorage creates a Storage on top of rdb. A ttl <= 0 uses DefaultSessionTTL.
func NewRedisStorage(rdb *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStorage{rdb: rdb, ttl: ttl}
}

// Connect parses url, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Get implements Storage.
func (s *RedisStorage) Get(ctx context.Context, key, field string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	value, err := s.rdb.HGet(ctx, redisKeyPrefix+key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return value, true, nil
}

// Set implements Storage.
func (s *RedisStorage) Set(ctx context.Context, key, field, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	redisKey := redisKeyPrefix + key
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisKey, field, value)
		pipe.Expire(ctx, redisKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}
