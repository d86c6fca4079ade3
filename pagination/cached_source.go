package pagination

import (
	"context"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/cursor"
)

// CachedSource serves Fetch and Count of a Source through a read-through cache.
//
// Keys are derived from base:
//
//	<base>:limit=N                 first page
//	<base>:last_id=<token>:limit=N later pages
//	<base>:total                   collection size
//
// N is the page size the caller asked for, without the look-ahead item.
// Writers evict the whole family with cache.Invalidator.EvictPrefix(base).
type CachedSource[T any] struct {
	src   Source[T]
	rt    *cache.ReadThrough
	codec *cursor.Codec
	base  string
	ttl   time.Duration
}

// NewCachedSource wraps src. codec must be the one the Assembler uses so
// that page keys carry the same tokens clients send back.
func NewCachedSource[T any](src Source[T], rt *cache.ReadThrough, codec *cursor.Codec, base string, ttl time.Duration) *CachedSource[T] {
	if codec == nil {
		codec = cursor.NewCodec()
	}
	return &CachedSource[T]{
		src:   src,
		rt:    rt,
		codec: codec,
		base:  base,
		ttl:   ttl,
	}
}

// Fetch implements Source.
func (s *CachedSource[T]) Fetch(ctx context.Context, after cursor.Position, limit int) ([]T, error) {
	return cache.GetOrCompute(ctx, s.rt, s.PageKey(after, limit-Lookahead), s.ttl,
		func(ctx context.Context) ([]T, error) {
			return s.src.Fetch(ctx, after, limit)
		})
}

// Count implements Source.
func (s *CachedSource[T]) Count(ctx context.Context) (int, error) {
	return cache.GetOrCompute(ctx, s.rt, s.TotalKey(), s.ttl, s.src.Count)
}

// Position implements Source.
func (s *CachedSource[T]) Position(item T) cursor.Position {
	return s.src.Position(item)
}

// Base returns the key prefix shared by every entry of this listing.
func (s *CachedSource[T]) Base() string {
	return s.base
}

// PageKey returns the cache key of the page of size pageSize following after.
func (s *CachedSource[T]) PageKey(after cursor.Position, pageSize int) string {
	if after.IsOrigin() || after.IsZero() {
		return cache.QueryKey(s.base, cache.P("limit", pageSize))
	}
	return cache.QueryKey(s.base,
		cache.P("last_id", s.codec.Encode(after)),
		cache.P("limit", pageSize))
}

// TotalKey returns the cache key of the collection size.
func (s *CachedSource[T]) TotalKey() string {
	return s.base + cache.KeySeparator + "total"
}
