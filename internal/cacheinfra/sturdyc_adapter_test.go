package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != BackendMemory {
		t.Errorf("expected Backend to be memory, got %q", cfg.Backend)
	}

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.MaxTTL != 30*time.Minute {
		t.Errorf("expected MaxTTL to be 30 minutes, got %v", cfg.MaxTTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if cfg.OpTimeout != 250*time.Millisecond {
		t.Errorf("expected OpTimeout to be 250ms, got %v", cfg.OpTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	withDefaults := func(mutate func(*Config)) Config {
		cfg := DefaultConfig()
		mutate(&cfg)
		return cfg
	}

	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{
			name: "valid default config",
			cfg:  DefaultConfig(),
		},
		{
			name: "valid redis config ignores memory sizing",
			cfg: withDefaults(func(c *Config) {
				c.Backend = BackendRedis
				c.Capacity = 0
				c.MaxTTL = 0
			}),
		},
		{
			name:      "unknown backend",
			cfg:       withDefaults(func(c *Config) { c.Backend = "memcached" }),
			wantField: "Backend",
		},
		{
			name:      "invalid op timeout",
			cfg:       withDefaults(func(c *Config) { c.OpTimeout = 0 }),
			wantField: "OpTimeout",
		},
		{
			name:      "invalid capacity - zero",
			cfg:       withDefaults(func(c *Config) { c.Capacity = 0 }),
			wantField: "Capacity",
		},
		{
			name:      "invalid num shards - zero",
			cfg:       withDefaults(func(c *Config) { c.NumShards = 0 }),
			wantField: "NumShards",
		},
		{
			name:      "invalid max TTL - zero",
			cfg:       withDefaults(func(c *Config) { c.MaxTTL = 0 }),
			wantField: "MaxTTL",
		},
		{
			name:      "invalid eviction percentage - too low",
			cfg:       withDefaults(func(c *Config) { c.EvictionPercentage = 0 }),
			wantField: "EvictionPercentage",
		},
		{
			name:      "invalid eviction percentage - too high",
			cfg:       withDefaults(func(c *Config) { c.EvictionPercentage = 101 }),
			wantField: "EvictionPercentage",
		},
		{
			name:      "invalid eviction interval",
			cfg:       withDefaults(func(c *Config) { c.EvictionInterval = -time.Second }),
			wantField: "EvictionInterval",
		},
		{
			name: "invalid scan count",
			cfg: withDefaults(func(c *Config) {
				c.Backend = BackendRedis
				c.ScanCount = -1
			}),
			wantField: "ScanCount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected no validation error but got: %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected error on field %s, got %s", tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{
		Field:   "TestField",
		Message: "test message",
	}

	expected := "config error in field TestField: test message"
	if err.Error() != expected {
		t.Errorf("expected error message %q, got %q", expected, err.Error())
	}
}

func TestNewMemoryStore(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		store, err := NewMemoryStore(DefaultConfig())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if store == nil {
			t.Fatal("expected store to be created")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Capacity = 0
		store, err := NewMemoryStore(cfg)
		if err == nil {
			t.Fatal("expected error for invalid config")
		}
		if store != nil {
			t.Error("expected nil store on error")
		}
	})

	t.Run("redis backend name is overridden", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Backend = BackendRedis
		if _, err := NewMemoryStore(cfg); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	store, err := NewMemoryStore(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	return store, clock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_GetSet(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "user:42"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "user:42", []byte(`{"id":42}`), time.Minute); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}

	got, ok, err := store.Get(ctx, "user:42")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `{"id":42}` {
		t.Errorf("unexpected value %q", got)
	}
}

func TestMemoryStore_CopiesValue(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	buf := []byte("original")
	_ = store.Set(ctx, "k", buf, time.Minute)
	copy(buf, "mutated!")

	got, _, _ := store.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("expected stored value to be isolated from caller buffer, got %q", got)
	}
}

func TestMemoryStore_PerEntryTTL(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	_ = store.Set(ctx, "short", []byte("a"), 10*time.Second)
	_ = store.Set(ctx, "long", []byte("b"), 10*time.Minute)

	clock.Advance(11 * time.Second)

	if _, ok, _ := store.Get(ctx, "short"); ok {
		t.Error("expected short-lived entry to expire")
	}
	if _, ok, _ := store.Get(ctx, "long"); !ok {
		t.Error("expected long-lived entry to survive")
	}
}

func TestMemoryStore_TTLClampedToMax(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	_ = store.Set(ctx, "forever", []byte("a"), 0)
	_ = store.Set(ctx, "too-long", []byte("b"), 24*time.Hour)

	clock.Advance(29 * time.Minute)
	if _, ok, _ := store.Get(ctx, "forever"); !ok {
		t.Error("expected entry to live until MaxTTL")
	}

	clock.Advance(2 * time.Minute)
	for _, key := range []string{"forever", "too-long"} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("expected %s to expire at MaxTTL", key)
		}
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	_ = store.Set(ctx, "channel:1", []byte("1"), time.Minute)
	_ = store.Set(ctx, "channel:2", []byte("2"), time.Minute)
	_ = store.Set(ctx, "channel:3", []byte("3"), time.Minute)

	if err := store.Delete(ctx, "channel:1", "channel:2", "channel:missing"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	for _, key := range []string{"channel:1", "channel:2"} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("expected %s to be deleted", key)
		}
	}
	if _, ok, _ := store.Get(ctx, "channel:3"); !ok {
		t.Error("expected channel:3 to remain")
	}
}

func TestMemoryStore_DeleteByPrefix(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	ctx := context.Background()

	keys := []string{
		"channel:5:blocks",
		"channel:5:blocks:limit=10",
		"channel:5:blocks:last_id=MTA:limit=10",
		"channel:5:blocks:total",
		"channel:5:followers",
		"channel:50:blocks:limit=10",
	}
	for _, key := range keys {
		_ = store.Set(ctx, key, []byte("x"), time.Minute)
	}

	if err := store.DeleteByPrefix(ctx, "channel:5:blocks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range keys {
		_, ok, _ := store.Get(ctx, key)
		shouldRemain := !strings.HasPrefix(key, "channel:5:blocks")
		if ok != shouldRemain {
			t.Errorf("key %s: expected present=%v, got %v", key, shouldRemain, ok)
		}
	}
}

func TestMemoryStore_ReadThrough(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	rt := cache.NewReadThrough(store)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) ([]int, error) {
		calls++
		return []int{1, 2, 3}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := cache.GetOrCompute(ctx, rt, "user:7:channels:limit=10", time.Minute, fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("unexpected value %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected a single fetch, got %d", calls)
	}
}

func TestStore_InterfaceCompliance(t *testing.T) {
	var _ cache.Store = (*MemoryStore)(nil)
	var _ cache.PrefixDeleter = (*MemoryStore)(nil)
	var _ cache.Store = (*RedisStore)(nil)
	var _ cache.PrefixDeleter = (*RedisStore)(nil)
}
