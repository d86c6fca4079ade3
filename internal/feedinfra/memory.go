package feedinfra

import (
	"bytes"
	"context"
	"path"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-graph-cache/feed"
)

const defaultShards = 64

type member struct {
	score int64
	value []byte
}

// sortedSet keeps members ordered by (score, value) ascending, the order
// Redis uses for sorted sets.
type sortedSet struct {
	members []member
	scores  map[string]int64
}

func newSortedSet() *sortedSet {
	return &sortedSet{scores: make(map[string]int64)}
}

func less(a, b member) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return bytes.Compare(a.value, b.value) < 0
}

func (s *sortedSet) search(m member) int {
	return sort.Search(len(s.members), func(i int) bool {
		return !less(s.members[i], m)
	})
}

func (s *sortedSet) add(score int64, value []byte) {
	if old, ok := s.scores[string(value)]; ok {
		if old == score {
			return
		}
		i := s.search(member{score: old, value: value})
		s.members = append(s.members[:i], s.members[i+1:]...)
	}
	m := member{score: score, value: append([]byte(nil), value...)}
	i := s.search(m)
	s.members = append(s.members, member{})
	copy(s.members[i+1:], s.members[i:])
	s.members[i] = m
	s.scores[string(value)] = score
}

func (s *sortedSet) removeFirst(n int) {
	for _, m := range s.members[:n] {
		delete(s.scores, string(m.value))
	}
	s.members = append(s.members[:0:0], s.members[n:]...)
}

type shard struct {
	mu   sync.RWMutex
	sets map[string]*sortedSet
}

// MemoryStream is an in-process feed.Stream. Keys are spread over shards by
// xxhash so concurrent fan-out to different feeds rarely contends.
type MemoryStream struct {
	shards []*shard
}

// NewMemoryStream creates a stream with n shards. n <= 0 uses a default.
func NewMemoryStream(n int) *MemoryStream {
	if n <= 0 {
		n = defaultShards
	}
	s := &MemoryStream{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{sets: make(map[string]*sortedSet)}
	}
	return s
}

func (s *MemoryStream) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Append implements feed.Stream.
func (s *MemoryStream) Append(ctx context.Context, key string, score int64, value []byte) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.sets[key]
	if !ok {
		set = newSortedSet()
		sh.sets[key] = set
	}
	set.add(score, value)
	return nil
}

// RevRange implements feed.Stream.
func (s *MemoryStream) RevRange(ctx context.Context, key string, q feed.RangeQuery) ([][]byte, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	set, ok := sh.sets[key]
	if !ok {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0)
	skip := q.Offset
	for i := len(set.members) - 1; i >= 0; i-- {
		m := set.members[i]
		if q.Max != 0 && m.score > q.Max {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		out = append(out, append([]byte(nil), m.value...))
	}
	return out, nil
}

// Len implements feed.Stream.
func (s *MemoryStream) Len(ctx context.Context, key string) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if set, ok := sh.sets[key]; ok {
		return int64(len(set.members)), nil
	}
	return 0, nil
}

// Trim implements feed.Stream.
func (s *MemoryStream) Trim(ctx context.Context, key string, policy feed.TrimPolicy) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.sets[key]
	if !ok {
		return 0, nil
	}

	var removed int64
	if policy.MinScore > 0 {
		n := sort.Search(len(set.members), func(i int) bool {
			return set.members[i].score >= policy.MinScore
		})
		set.removeFirst(n)
		removed += int64(n)
	}
	if policy.MaxLen > 0 && int64(len(set.members)) > policy.MaxLen {
		n := len(set.members) - int(policy.MaxLen)
		set.removeFirst(n)
		removed += int64(n)
	}
	if len(set.members) == 0 {
		delete(sh.sets, key)
	}
	return removed, nil
}

// ScanKeys implements feed.Stream. match uses path.Match syntax, which
// agrees with Redis glob patterns for the keys used by feeds.
func (s *MemoryStream) ScanKeys(ctx context.Context, match string, fn func(key string) error) error {
	for _, sh := range s.shards {
		sh.mu.RLock()
		keys := make([]string, 0, len(sh.sets))
		for key := range sh.sets {
			if ok, _ := path.Match(match, key); ok {
				keys = append(keys, key)
			}
		}
		sh.mu.RUnlock()

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(key); err != nil {
				return err
			}
		}
	}
	return nil
}
