package repositorycache

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
)

// KeyRegistry remembers cache keys written by this process so families of
// keys can be evicted by prefix without scanning the backend.
type KeyRegistry struct {
	keys *xsync.MapOf[string, struct{}]
}

// NewKeyRegistry creates an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: xsync.NewMapOf[string, struct{}]()}
}

// Track registers key.
func (r *KeyRegistry) Track(key string) {
	r.keys.Store(key, struct{}{})
}

// Forget drops keys.
func (r *KeyRegistry) Forget(keys ...string) {
	for _, key := range keys {
		r.keys.Delete(key)
	}
}

// Matching returns the tracked keys starting with prefix.
func (r *KeyRegistry) Matching(prefix string) []string {
	var out []string
	r.keys.Range(func(key string, _ struct{}) bool {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return true
	})
	return out
}

// Len returns the number of tracked keys.
func (r *KeyRegistry) Len() int {
	return r.keys.Size()
}

// TrackingStore is a cache.Store that records every key it writes and
// serves DeleteByPrefix from that record. Keys written by other processes
// are not seen; they expire with their TTL.
type TrackingStore struct {
	store    cache.Store
	registry *KeyRegistry
}

// NewTrackingStore wraps store.
func NewTrackingStore(store cache.Store, registry *KeyRegistry) *TrackingStore {
	if registry == nil {
		registry = NewKeyRegistry()
	}
	return &TrackingStore{store: store, registry: registry}
}

// Registry returns the key registry.
func (s *TrackingStore) Registry() *KeyRegistry {
	return s.registry
}

// Get implements cache.Store.
func (s *TrackingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.store.Get(ctx, key)
}

// Set implements cache.Store.
func (s *TrackingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.registry.Track(key)
	return nil
}

// Delete implements cache.Store.
func (s *TrackingStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.store.Delete(ctx, keys...); err != nil {
		return err
	}
	s.registry.Forget(keys...)
	return nil
}

// DeleteByPrefix implements cache.PrefixDeleter.
func (s *TrackingStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	keys := s.registry.Matching(prefix)
	if len(keys) == 0 {
		return nil
	}
	return s.Delete(ctx, keys...)
}
