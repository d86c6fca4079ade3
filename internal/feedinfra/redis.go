package feedinfra

import (
	"context"
	"strconv"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/redis/go-redis/v9"
)

// RedisStream is a feed.Stream over Redis sorted sets: member is the encoded
// activity, score its timestamp in milliseconds.
type RedisStream struct {
	client    redis.Cmdable
	timeout   time.Duration
	scanCount int64
}

// NewRedisStream creates a stream over client. Each command is bounded by timeout.
func NewRedisStream(client redis.Cmdable, timeout time.Duration, scanCount int64) *RedisStream {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &RedisStream{client: client, timeout: timeout, scanCount: scanCount}
}

// Append implements feed.Stream.
func (s *RedisStream) Append(ctx context.Context, key string, score int64, member []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
	if err != nil {
		return cache.Unavailable("zadd", err)
	}
	return nil
}

// RevRange implements feed.Stream.
func (s *RedisStream) RevRange(ctx context.Context, key string, q feed.RangeQuery) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf", Offset: int64(q.Offset)}
	if q.Max != 0 {
		by.Max = strconv.FormatInt(q.Max, 10)
	}
	switch {
	case q.Limit > 0:
		by.Count = int64(q.Limit)
	case q.Offset > 0:
		// LIMIT offset 0 selects nothing; -1 means the rest of the window.
		by.Count = -1
	}

	members, err := s.client.ZRevRangeByScore(ctx, key, by).Result()
	if err != nil {
		return nil, cache.Unavailable("zrevrangebyscore", err)
	}

	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return out, nil
}

// Len implements feed.Stream.
func (s *RedisStream) Len(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, cache.Unavailable("zcard", err)
	}
	return n, nil
}

// Trim implements feed.Stream. Age and length trimming run in one MULTI block.
func (s *RedisStream) Trim(ctx context.Context, key string, policy feed.TrimPolicy) (int64, error) {
	if policy.IsZero() {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var byScore, byRank *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if policy.MinScore > 0 {
			byScore = pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(policy.MinScore, 10))
		}
		if policy.MaxLen > 0 {
			byRank = pipe.ZRemRangeByRank(ctx, key, 0, -(policy.MaxLen + 1))
		}
		return nil
	})
	if err != nil {
		return 0, cache.Unavailable("trim", err)
	}

	var removed int64
	if byScore != nil {
		removed += byScore.Val()
	}
	if byRank != nil {
		removed += byRank.Val()
	}
	return removed, nil
}

// ScanKeys implements feed.Stream with SCAN MATCH. Each SCAN page is bounded
// by the command timeout; fn runs outside of it.
func (s *RedisStream) ScanKeys(ctx context.Context, match string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.scanPage(ctx, cursor, match)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStream) scanPage(ctx context.Context, cursor uint64, match string) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys, next, err := s.client.Scan(ctx, cursor, match, s.scanCount).Result()
	if err != nil {
		return nil, 0, cache.Unavailable("scan", err)
	}
	return keys, next, nil
}
