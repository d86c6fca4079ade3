package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStore is an in-memory Store that records calls and can simulate outages.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	calls   []string
	getErr  error
	setErr  error
	delErr  error
	setHook func(key string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeStore) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Get:" + key)
	if f.getErr != nil {
		return nil, false, Unavailable("get", f.getErr)
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	f.record("Set:" + key)
	if f.setErr != nil {
		f.mu.Unlock()
		return Unavailable("set", f.setErr)
	}
	f.data[key] = append([]byte(nil), value...)
	f.ttls[key] = ttl
	hook := f.setHook
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Delete:" + strings.Join(keys, ","))
	if f.delErr != nil {
		return Unavailable("delete", f.delErr)
	}
	for _, k := range keys {
		delete(f.data, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeStore) raw(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key]
}

// prefixStore adds DeleteByPrefix to fakeStore.
type prefixStore struct {
	*fakeStore
}

func (p prefixStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("DeleteByPrefix:" + prefix)
	for k := range p.data {
		if strings.HasPrefix(k, prefix) {
			delete(p.data, k)
		}
	}
	return nil
}

type testUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestGetOrCompute_MissComputesOnceAndStores(t *testing.T) {
	store := newFakeStore()
	rt := NewReadThrough(store)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (testUser, error) {
		calls++
		return testUser{ID: 5, Name: "ada"}, nil
	}

	got, err := GetOrCompute(ctx, rt, "user:5", time.Minute, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "ada" || calls != 1 {
		t.Fatalf("expected one compute call and value ada, got %d calls, %+v", calls, got)
	}
	if !store.has("user:5") {
		t.Fatal("expected value to be stored")
	}
	if store.ttls["user:5"] != time.Minute {
		t.Errorf("expected ttl 1m, got %v", store.ttls["user:5"])
	}

	got, err = GetOrCompute(ctx, rt, "user:5", time.Minute, fetch)
	if err != nil {
		t.Fatalf("unexpected error on hit: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch must not run on hit, ran %d times", calls)
	}
	if got != (testUser{ID: 5, Name: "ada"}) {
		t.Errorf("unexpected cached value %+v", got)
	}
}

func TestGetOrCompute_FetchErrorIsNotCached(t *testing.T) {
	store := newFakeStore()
	rt := NewReadThrough(store)
	wantErr := errors.New("db down")

	_, err := GetOrCompute(context.Background(), rt, "user:1", time.Minute, func(ctx context.Context) (testUser, error) {
		return testUser{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if store.has("user:1") {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestGetOrCompute_AbsentVersusEmpty(t *testing.T) {
	ctx := context.Background()

	t.Run("nil pointer is not cached", func(t *testing.T) {
		store := newFakeStore()
		rt := NewReadThrough(store)
		got, err := GetOrCompute(ctx, rt, "user:404", time.Minute, func(ctx context.Context) (*testUser, error) {
			return nil, nil
		})
		if err != nil || got != nil {
			t.Fatalf("expected nil, nil; got %v, %v", got, err)
		}
		if store.has("user:404") {
			t.Error("nil result must not be cached")
		}
	})

	t.Run("nil slice is not cached", func(t *testing.T) {
		store := newFakeStore()
		rt := NewReadThrough(store)
		_, err := GetOrCompute(ctx, rt, "channel:9:blocks", time.Minute, func(ctx context.Context) ([]testUser, error) {
			return nil, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.has("channel:9:blocks") {
			t.Error("nil slice must not be cached")
		}
	})

	t.Run("empty slice is cached", func(t *testing.T) {
		store := newFakeStore()
		rt := NewReadThrough(store)
		calls := 0
		fetch := func(ctx context.Context) ([]testUser, error) {
			calls++
			return []testUser{}, nil
		}
		for i := 0; i < 3; i++ {
			got, err := GetOrCompute(ctx, rt, "channel:9:blocks", time.Minute, fetch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("expected empty non-nil slice, got %#v", got)
			}
		}
		if calls != 1 {
			t.Errorf("empty result should be served from cache, fetch ran %d times", calls)
		}
		if string(store.raw("channel:9:blocks")) != "[]" {
			t.Errorf("expected [] to be stored, got %q", store.raw("channel:9:blocks"))
		}
	})
}

func TestGetOrCompute_StoreReadFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("fail open reads from source and skips the write", func(t *testing.T) {
		store := newFakeStore()
		store.getErr = errors.New("connection refused")
		rt := NewReadThrough(store)

		got, err := GetOrCompute(ctx, rt, "user:2", time.Minute, func(ctx context.Context) (testUser, error) {
			return testUser{ID: 2}, nil
		})
		if err != nil {
			t.Fatalf("expected fallback to source, got %v", err)
		}
		if got.ID != 2 {
			t.Errorf("unexpected value %+v", got)
		}
		for _, c := range store.calls {
			if strings.HasPrefix(c, "Set:") {
				t.Errorf("no write expected during outage, saw %s", c)
			}
		}
	})

	t.Run("fail closed propagates", func(t *testing.T) {
		store := newFakeStore()
		store.getErr = errors.New("connection refused")
		rt := NewReadThrough(store, WithFailOpen(false))

		called := false
		_, err := GetOrCompute(ctx, rt, "user:2", time.Minute, func(ctx context.Context) (testUser, error) {
			called = true
			return testUser{ID: 2}, nil
		})
		if !errors.Is(err, ErrCacheUnavailable) {
			t.Fatalf("expected ErrCacheUnavailable, got %v", err)
		}
		if called {
			t.Error("fetch must not run when failing closed")
		}
	})
}

func TestGetOrCompute_WriteFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("read only replica")
	rt := NewReadThrough(store)

	got, err := GetOrCompute(context.Background(), rt, "user:3", time.Minute, func(ctx context.Context) (testUser, error) {
		return testUser{ID: 3}, nil
	})
	if err != nil {
		t.Fatalf("write failure must not surface, got %v", err)
	}
	if got.ID != 3 {
		t.Errorf("unexpected value %+v", got)
	}
}

func TestGetOrCompute_CorruptEntryIsRecomputed(t *testing.T) {
	store := newFakeStore()
	store.data["user:4"] = []byte("{not json")
	rt := NewReadThrough(store)

	got, err := GetOrCompute(context.Background(), rt, "user:4", time.Minute, func(ctx context.Context) (testUser, error) {
		return testUser{ID: 4, Name: "fresh"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "fresh" {
		t.Errorf("expected recomputed value, got %+v", got)
	}
	if string(store.raw("user:4")) == "{not json" {
		t.Error("corrupt entry should have been overwritten")
	}
}

func TestGetOrCompute_ConcurrentMissesConverge(t *testing.T) {
	store := newFakeStore()
	rt := NewReadThrough(store)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	slowFn := func(ctx context.Context) (testUser, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return testUser{ID: 5, Name: "converged"}, nil
	}

	var wg sync.WaitGroup
	results := make([]testUser, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrCompute(ctx, rt, "user:5", time.Minute, slowFn)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}

	<-started
	<-started
	close(release)
	wg.Wait()

	if calls.Load() != 2 {
		t.Errorf("both concurrent misses compute without coalescing, got %d", calls.Load())
	}
	if results[0] != results[1] {
		t.Errorf("results diverged: %+v vs %+v", results[0], results[1])
	}

	var stored testUser
	if err := (JSONCodec{}).Unmarshal(store.raw("user:5"), &stored); err != nil {
		t.Fatalf("stored value is not decodable: %v", err)
	}
	if stored != results[0] {
		t.Errorf("store holds %+v, want %+v", stored, results[0])
	}
}

func TestGetOrCompute_Coalescing(t *testing.T) {
	store := newFakeStore()
	rt := NewReadThrough(store, WithCoalescing(true))
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	fetch := func(ctx context.Context) (testUser, error) {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
		}
		<-release
		return testUser{ID: 6}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = GetOrCompute(ctx, rt, "user:6", time.Minute, fetch)
	}()
	<-entered

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrCompute(ctx, rt, "user:6", time.Minute, fetch)
			if err != nil || v.ID != 6 {
				t.Errorf("unexpected result %+v, %v", v, err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected a single coalesced fetch, got %d", calls.Load())
	}
}

func TestGetOrCompute_MsgpackCodec(t *testing.T) {
	store := newFakeStore()
	rt := NewReadThrough(store, WithCodec(MsgpackCodec{}))
	ctx := context.Background()

	want := testUser{ID: 8, Name: "msgpack"}
	fetch := func(ctx context.Context) (testUser, error) { return want, nil }

	if _, err := GetOrCompute(ctx, rt, "user:8", time.Minute, fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := GetOrCompute(ctx, rt, "user:8", time.Minute, func(ctx context.Context) (testUser, error) {
		t.Fatal("expected cache hit")
		return testUser{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "msgpack"} {
		if _, err := CodecByName(name); err != nil {
			t.Errorf("CodecByName(%q) unexpected error: %v", name, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func TestStoreError_Is(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := Unavailable("get", base)
	if !errors.Is(err, ErrCacheUnavailable) || !errors.Is(err, base) {
		t.Errorf("expected error to match both sentinels, got %v", err)
	}
	if Unavailable("get", nil) != nil {
		t.Error("nil error should stay nil")
	}
	if again := Unavailable("set", err); again != err {
		t.Error("already wrapped errors must not be wrapped twice")
	}
}
