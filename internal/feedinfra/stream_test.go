package feedinfra

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamFactory func(t *testing.T) feed.Stream

func streamBackends() map[string]streamFactory {
	return map[string]streamFactory{
		"memory": func(t *testing.T) feed.Stream {
			return NewMemoryStream(4)
		},
		"redis": func(t *testing.T) feed.Stream {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStream(client, time.Second, 10)
		},
	}
}

func strs(members [][]byte) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = string(m)
	}
	return out
}

func TestStream_Contract(t *testing.T) {
	for name, newStream := range streamBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("missing key reads empty", func(t *testing.T) {
				s := newStream(t)
				got, err := s.RevRange(ctx, "user:1:feed", feed.RangeQuery{})
				require.NoError(t, err)
				assert.Empty(t, got)

				n, err := s.Len(ctx, "user:1:feed")
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("newest first", func(t *testing.T) {
				s := newStream(t)
				require.NoError(t, s.Append(ctx, "user:1:feed", 100, []byte("a")))
				require.NoError(t, s.Append(ctx, "user:1:feed", 300, []byte("c")))
				require.NoError(t, s.Append(ctx, "user:1:feed", 200, []byte("b")))

				got, err := s.RevRange(ctx, "user:1:feed", feed.RangeQuery{})
				require.NoError(t, err)
				assert.Equal(t, []string{"c", "b", "a"}, strs(got))
			})

			t.Run("re-append updates score", func(t *testing.T) {
				s := newStream(t)
				require.NoError(t, s.Append(ctx, "k", 100, []byte("a")))
				require.NoError(t, s.Append(ctx, "k", 200, []byte("b")))
				require.NoError(t, s.Append(ctx, "k", 300, []byte("a")))

				got, err := s.RevRange(ctx, "k", feed.RangeQuery{})
				require.NoError(t, err)
				assert.Equal(t, []string{"a", "b"}, strs(got))

				n, err := s.Len(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)
			})

			t.Run("inclusive upper bound and limit", func(t *testing.T) {
				s := newStream(t)
				for i := 1; i <= 5; i++ {
					require.NoError(t, s.Append(ctx, "k", int64(i*100), []byte(fmt.Sprintf("m%d", i))))
				}

				got, err := s.RevRange(ctx, "k", feed.RangeQuery{Max: 400, Limit: 2})
				require.NoError(t, err)
				assert.Equal(t, []string{"m4", "m3"}, strs(got))

				got, err = s.RevRange(ctx, "k", feed.RangeQuery{Limit: 1})
				require.NoError(t, err)
				assert.Equal(t, []string{"m5"}, strs(got))
			})

			t.Run("equal scores page by offset in descending member order", func(t *testing.T) {
				s := newStream(t)
				for _, m := range []string{"b", "d", "a", "c"} {
					require.NoError(t, s.Append(ctx, "k", 500, []byte(m)))
				}
				require.NoError(t, s.Append(ctx, "k", 900, []byte("z")))

				got, err := s.RevRange(ctx, "k", feed.RangeQuery{Max: 500, Limit: 2})
				require.NoError(t, err)
				assert.Equal(t, []string{"d", "c"}, strs(got))

				got, err = s.RevRange(ctx, "k", feed.RangeQuery{Max: 500, Offset: 2, Limit: 2})
				require.NoError(t, err)
				assert.Equal(t, []string{"b", "a"}, strs(got))

				got, err = s.RevRange(ctx, "k", feed.RangeQuery{Offset: 3})
				require.NoError(t, err)
				assert.Equal(t, []string{"b", "a"}, strs(got))
			})

			t.Run("trim by length", func(t *testing.T) {
				s := newStream(t)
				for i := 1; i <= 5; i++ {
					require.NoError(t, s.Append(ctx, "k", int64(i), []byte(fmt.Sprintf("m%d", i))))
				}

				removed, err := s.Trim(ctx, "k", feed.TrimPolicy{MaxLen: 3})
				require.NoError(t, err)
				assert.Equal(t, int64(2), removed)

				got, err := s.RevRange(ctx, "k", feed.RangeQuery{})
				require.NoError(t, err)
				assert.Equal(t, []string{"m5", "m4", "m3"}, strs(got))
			})

			t.Run("trim by age", func(t *testing.T) {
				s := newStream(t)
				for i := 1; i <= 5; i++ {
					require.NoError(t, s.Append(ctx, "k", int64(i*10), []byte(fmt.Sprintf("m%d", i))))
				}

				removed, err := s.Trim(ctx, "k", feed.TrimPolicy{MinScore: 30})
				require.NoError(t, err)
				assert.Equal(t, int64(2), removed)

				got, err := s.RevRange(ctx, "k", feed.RangeQuery{})
				require.NoError(t, err)
				assert.Equal(t, []string{"m5", "m4", "m3"}, strs(got))
			})

			t.Run("trim with both bounds", func(t *testing.T) {
				s := newStream(t)
				for i := 1; i <= 6; i++ {
					require.NoError(t, s.Append(ctx, "k", int64(i*10), []byte(fmt.Sprintf("m%d", i))))
				}

				removed, err := s.Trim(ctx, "k", feed.TrimPolicy{MinScore: 20, MaxLen: 2})
				require.NoError(t, err)
				assert.Equal(t, int64(4), removed)

				got, err := s.RevRange(ctx, "k", feed.RangeQuery{})
				require.NoError(t, err)
				assert.Equal(t, []string{"m6", "m5"}, strs(got))
			})

			t.Run("scan keys", func(t *testing.T) {
				s := newStream(t)
				for _, key := range []string{"user:1:feed", "user:2:feed", "user:30:feed", "feed:global", "channel:1:blocks"} {
					require.NoError(t, s.Append(ctx, key, 1, []byte("x")))
				}

				var keys []string
				err := s.ScanKeys(ctx, feed.FeedKeyPattern, func(key string) error {
					keys = append(keys, key)
					return nil
				})
				require.NoError(t, err)
				sort.Strings(keys)
				assert.Equal(t, []string{"user:1:feed", "user:2:feed", "user:30:feed"}, keys)
			})
		})
	}
}

func TestMemoryStream_ConcurrentAppends(t *testing.T) {
	s := NewMemoryStream(8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 10; u++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(u, i int) {
				defer wg.Done()
				_ = s.Append(ctx, feed.Key(int64(u+1)), int64(i), []byte(fmt.Sprintf("%d-%d", u, i)))
			}(u, i)
		}
	}
	wg.Wait()

	for u := 0; u < 10; u++ {
		n, err := s.Len(ctx, feed.Key(int64(u+1)))
		require.NoError(t, err)
		assert.Equal(t, int64(50), n)
	}
}

func TestRedisStream_Outage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStream(client, 100*time.Millisecond, 10)
	mr.Close()

	err := s.Append(context.Background(), "user:1:feed", 1, []byte("x"))
	assert.ErrorIs(t, err, cache.ErrCacheUnavailable)

	_, err = s.RevRange(context.Background(), "user:1:feed", feed.RangeQuery{})
	assert.ErrorIs(t, err, cache.ErrCacheUnavailable)
}

func TestFanOut_EndToEndOnMemoryStream(t *testing.T) {
	s := NewMemoryStream(0)
	fo := feed.NewFanOut(s, feed.WithRetention(feed.Retention{MaxLength: 100}))
	reader := feed.NewReader(s, nil)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a := feed.NewActivity(42, feed.VerbCreated, feed.ChannelSubject{ID: int64(i + 1)}, base.Add(time.Duration(i)*time.Minute))
		_, err := fo.Publish(ctx, a)
		require.NoError(t, err)
	}

	got, err := reader.GetFeed(ctx, 42)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].Subject.SubjectID())
	assert.Equal(t, int64(1), got[2].Subject.SubjectID())
}

func TestFeedPages_SameMillisecond(t *testing.T) {
	for name, newStream := range streamBackends() {
		t.Run(name, func(t *testing.T) {
			s := newStream(t)
			fo := feed.NewFanOut(s)
			src := feed.NewReader(s, nil).Source(1)
			asm := pagination.NewAssembler(nil, pagination.DefaultLimits(), nil)
			ctx := context.Background()

			at := time.Now().UTC().Truncate(time.Millisecond)
			for i := 0; i < 12; i++ {
				_, err := fo.Publish(ctx, feed.NewActivity(1, feed.VerbCreated, feed.ChannelSubject{ID: int64(i + 1)}, at))
				require.NoError(t, err)
			}

			first, err := pagination.Paginate[feed.Activity](ctx, asm, src, pagination.Request{Limit: 10})
			require.NoError(t, err)
			require.Len(t, first.Data, 10)
			require.NotNil(t, first.Next)

			second, err := pagination.Paginate[feed.Activity](ctx, asm, src, pagination.Request{Token: *first.Next, Limit: 10})
			require.NoError(t, err)
			require.Len(t, second.Data, 2)
			assert.Nil(t, second.Next)

			seen := make(map[string]bool)
			for _, a := range append(first.Data, second.Data...) {
				seen[a.ID] = true
			}
			assert.Len(t, seen, 12)
		})
	}
}

type scanDeadlines struct {
	redis.Cmdable
	scans     int
	unbounded int
}

func (r *scanDeadlines) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	r.scans++
	if _, ok := ctx.Deadline(); !ok {
		r.unbounded++
	}
	return r.Cmdable.Scan(ctx, cursor, match, count)
}

func TestRedisStream_ScanKeysBoundsEveryPage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rec := &scanDeadlines{Cmdable: client}
	s := NewRedisStream(rec, time.Second, 2)
	ctx := context.Background()

	for u := 1; u <= 5; u++ {
		require.NoError(t, s.Append(ctx, feed.Key(int64(u)), 1, []byte("x")))
	}

	var keys []string
	require.NoError(t, s.ScanKeys(ctx, feed.FeedKeyPattern, func(key string) error {
		keys = append(keys, key)
		return nil
	}))

	assert.Len(t, keys, 5)
	assert.NotZero(t, rec.scans)
	assert.Zero(t, rec.unbounded, "every SCAN page needs its own timeout")
}
