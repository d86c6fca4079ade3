package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a cache.Store backed by Redis strings with native expiry.
type RedisStore struct {
	client    redis.Cmdable
	timeout   time.Duration
	scanCount int64
}

// NewRedisStore creates a store over client. Every operation is bounded by cfg.OpTimeout.
func NewRedisStore(client redis.Cmdable, cfg Config) (*RedisStore, error) {
	cfg.Backend = BackendRedis
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, &ConfigError{Field: "client", Message: "cannot be nil"}
	}
	return &RedisStore{
		client:    client,
		timeout:   cfg.OpTimeout,
		scanCount: cfg.ScanCount,
	}, nil
}

// Get implements cache.Store.Get. redis.Nil is a miss, anything else an outage.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cache.Unavailable("get", err)
	}
	return val, true, nil
}

// Set implements cache.Store.Set.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return cache.Unavailable("set", err)
	}
	return nil
}

// Delete implements cache.Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return cache.Unavailable("delete", err)
	}
	return nil
}

// DeleteByPrefix implements cache.PrefixDeleter using SCAN MATCH + DEL. Each
// SCAN page and each DEL is bounded by the operation timeout on its own.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(prefix) + "*"

	var cursor uint64
	for {
		keys, next, err := s.scanPage(ctx, cursor, pattern)
		if err != nil {
			return err
		}
		if err := s.Delete(ctx, keys...); err != nil {
			return err
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) scanPage(ctx context.Context, cursor uint64, match string) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys, next, err := s.client.Scan(ctx, cursor, match, s.scanCount).Result()
	if err != nil {
		return nil, 0, cache.Unavailable("scan", err)
	}
	return keys, next, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
