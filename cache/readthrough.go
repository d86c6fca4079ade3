package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/goliatone/go-graph-cache/internal/metrics"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ReadThrough serves values from a Store and falls back to a FetchFn on miss.
//
// Concurrent misses on the same key each run their FetchFn and overwrite the
// entry with equivalent data unless coalescing is enabled with WithCoalescing.
type ReadThrough struct {
	store    Store
	codec    Codec
	logger   logger.Logger
	metrics  metrics.Recorder
	layer    string
	failOpen bool
	group    *singleflight.Group
}

// ReadThroughOption customises a ReadThrough.
type ReadThroughOption func(*ReadThrough)

// WithCodec sets the value codec. JSON is used by default.
func WithCodec(c Codec) ReadThroughOption {
	return func(rt *ReadThrough) {
		if c != nil {
			rt.codec = c
		}
	}
}

// WithLogger sets the logger used for swallowed cache failures.
func WithLogger(l logger.Logger) ReadThroughOption {
	return func(rt *ReadThrough) {
		rt.logger = logger.OrNop(l)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) ReadThroughOption {
	return func(rt *ReadThrough) {
		rt.metrics = metrics.OrNoop(m)
	}
}

// WithLayer labels metrics and logs, e.g. "entity" or "listing".
func WithLayer(layer string) ReadThroughOption {
	return func(rt *ReadThrough) {
		rt.layer = layer
	}
}

// WithFailOpen controls what happens when the store fails on Get. When true
// (the default) the value is computed from the source of truth and the cache
// write is skipped. When false the store error is returned.
func WithFailOpen(failOpen bool) ReadThroughOption {
	return func(rt *ReadThrough) {
		rt.failOpen = failOpen
	}
}

// WithCoalescing collapses concurrent misses for the same key into a single
// FetchFn call.
func WithCoalescing(enabled bool) ReadThroughOption {
	return func(rt *ReadThrough) {
		if enabled {
			rt.group = &singleflight.Group{}
		} else {
			rt.group = nil
		}
	}
}

// NewReadThrough creates a ReadThrough over store.
func NewReadThrough(store Store, opts ...ReadThroughOption) *ReadThrough {
	rt := &ReadThrough{
		store:    store,
		codec:    JSONCodec{},
		logger:   logger.NewNopLogger(),
		metrics:  metrics.Noop{},
		layer:    "default",
		failOpen: true,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Store returns the underlying store.
func (rt *ReadThrough) Store() Store {
	return rt.store
}

// Codec returns the codec used to encode values.
func (rt *ReadThrough) Codec() Codec {
	return rt.codec
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Errors from fetch are returned as-is and nothing is cached.
// Absent results (nil pointers, maps, slices or interfaces) are returned but
// never cached since "not found" may turn into "found" later; an empty
// non-nil slice is a valid result and is cached.
func GetOrCompute[T any](ctx context.Context, rt *ReadThrough, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	var zero T

	raw, ok, err := rt.store.Get(ctx, key)
	switch {
	case err != nil:
		rt.metrics.CacheError(rt.layer, "get")
		if !rt.failOpen {
			return zero, Unavailable("get", err)
		}
		rt.logger.Warn("cache read failed, reading from source",
			logger.String("layer", rt.layer),
			logger.String("key", key),
			logger.Error(err))
		return fetch(ctx)

	case ok:
		var cached T
		if derr := rt.codec.Unmarshal(raw, &cached); derr == nil {
			rt.metrics.CacheHit(rt.layer)
			return cached, nil
		} else {
			rt.logger.Warn("dropping undecodable cache entry",
				logger.String("layer", rt.layer),
				logger.String("key", key),
				logger.Error(derr))
		}
	}

	rt.metrics.CacheMiss(rt.layer)

	value, err := compute(ctx, rt, key, fetch)
	if err != nil {
		return zero, err
	}

	if !isAbsent(value) {
		rt.set(ctx, key, value, ttl)
	}
	return value, nil
}

// Set encodes value and writes it under key. Failures are logged and
// swallowed: losing a cache write must not fail the operation that produced
// the data.
func (rt *ReadThrough) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	rt.set(ctx, key, value, ttl)
}

func (rt *ReadThrough) set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := rt.codec.Marshal(value)
	if err != nil {
		rt.metrics.CacheWriteFailure(rt.layer)
		rt.logger.Error("cache value encoding failed",
			logger.String("layer", rt.layer),
			logger.String("key", key),
			logger.Error(err))
		return
	}

	// The write outlives a cancelled request; the store applies its own timeout.
	if err := rt.store.Set(context.WithoutCancel(ctx), key, data, ttl); err != nil {
		rt.metrics.CacheWriteFailure(rt.layer)
		rt.logger.Warn("cache write failed",
			logger.String("layer", rt.layer),
			logger.String("key", key),
			logger.Duration("ttl", ttl),
			logger.Error(err))
	}
}

func compute[T any](ctx context.Context, rt *ReadThrough, key string, fetch FetchFn[T]) (T, error) {
	if rt.group == nil {
		return fetch(ctx)
	}

	var zero T
	res, err, _ := rt.group.Do(key, func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	value, ok := res.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return value, nil
}

func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
