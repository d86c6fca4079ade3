package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// entry wraps a cached value with its own expiry so a single sturdyc client
// can hold values with different TTLs.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process cache.Store backed by a sturdyc client.
type MemoryStore struct {
	client *sturdyc.Client[entry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemoryStore creates a new sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// Capacity, NumShards, MaxTTL and EvictionPercentage are passed to sturdyc.New();
// the eviction interval is applied as an option when set.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	cfg.Backend = BackendMemory
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		opts...,
	)

	return &MemoryStore{
		client: client,
		maxTTL: cfg.MaxTTL,
		now:    time.Now,
	}, nil
}

// Get implements cache.Store.Get. Expired entries are reported as a miss and dropped.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements cache.Store.Set. A non-positive ttl falls back to MaxTTL.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	s.client.Set(key, entry{
		value:     append([]byte(nil), value...),
		expiresAt: s.now().Add(ttl),
	})
	return nil
}

// Delete implements cache.Store.Delete.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// DeleteByPrefix implements cache.PrefixDeleter.
// Removes all entries from the cache that have keys starting with the given prefix.
func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Len returns the number of entries currently held, expired ones included.
func (s *MemoryStore) Len() int {
	return s.client.Size()
}
