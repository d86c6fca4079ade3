package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-graph-cache/internal/metrics"
	"github.com/goliatone/go-graph-cache/pkg/logger"
)

// Invalidator keeps cache entries in line with committed writes. It is
// called after the authoritative write succeeded; none of its methods return
// errors, failures are logged and counted.
type Invalidator struct {
	rt      *ReadThrough
	logger  logger.Logger
	metrics metrics.Recorder
	layer   string
}

// NewInvalidator creates an Invalidator writing through rt's store and codec.
func NewInvalidator(rt *ReadThrough, l logger.Logger, m metrics.Recorder) *Invalidator {
	return &Invalidator{
		rt:      rt,
		logger:  logger.OrNop(l),
		metrics: metrics.OrNoop(m),
		layer:   rt.layer,
	}
}

// OnEntityUpdated overwrites "<type>:<id>" with value so the next read is
// served warm from the cache. A nil value evicts the entry instead.
func (i *Invalidator) OnEntityUpdated(ctx context.Context, entityType string, id any, value any, ttl time.Duration) {
	i.Refresh(ctx, Key(entityType, id), value, ttl)
}

// Refresh overwrites key with value, or evicts it when value is absent.
func (i *Invalidator) Refresh(ctx context.Context, key string, value any, ttl time.Duration) {
	if isAbsent(value) {
		i.Evict(ctx, key)
		return
	}
	i.rt.set(ctx, key, value, ttl)
}

// Evict removes keys.
func (i *Invalidator) Evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := i.rt.store.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		i.metrics.CacheError(i.layer, "delete")
		i.logger.Warn("cache eviction failed",
			logger.Any("keys", keys),
			logger.Error(err))
	}
}

// EvictRelation drops every listing cached under "<type>:<id>:<relation>",
// including parameterised variants such as ":limit=10". Stores that cannot
// delete by prefix only lose the bare relation key; the remaining variants
// age out with their TTL.
func (i *Invalidator) EvictRelation(ctx context.Context, entityType string, id any, relation string) {
	i.EvictPrefix(ctx, RelationKey(entityType, id, relation))
}

// EvictPrefix drops prefix itself and, when supported, every key below it.
func (i *Invalidator) EvictPrefix(ctx context.Context, prefix string) {
	pd, ok := i.rt.store.(PrefixDeleter)
	if !ok {
		i.Evict(ctx, prefix)
		return
	}
	if err := pd.DeleteByPrefix(context.WithoutCancel(ctx), prefix); err != nil {
		i.metrics.CacheError(i.layer, "delete_prefix")
		i.logger.Warn("cache prefix eviction failed",
			logger.String("prefix", prefix),
			logger.Error(err))
	}
}
