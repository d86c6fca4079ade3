package cacheinfra

import (
	"github.com/goliatone/go-graph-cache/cache"
	"github.com/redis/go-redis/v9"
)

// NewStore builds the store selected by cfg.Backend. client is only used by
// the redis backend.
func NewStore(cfg Config, client redis.Cmdable) (cache.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisStore(client, cfg)
	default:
		return NewMemoryStore(cfg)
	}
}
