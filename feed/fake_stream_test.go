package feed

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
)

type fakeEntry struct {
	score  int64
	member string
}

// fakeStream is a map backed Stream with per-key failure injection.
type fakeStream struct {
	mu       sync.Mutex
	data     map[string][]fakeEntry
	failKeys map[string]error
	trimErr  error
	scanErr  error
	appends  []string
	trims    []TrimPolicy
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		data:     make(map[string][]fakeEntry),
		failKeys: make(map[string]error),
	}
}

func (s *fakeStream) Append(ctx context.Context, key string, score int64, member []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, key)
	if err := s.failKeys[key]; err != nil {
		return err
	}
	s.data[key] = append(s.data[key], fakeEntry{score: score, member: string(member)})
	entries := s.data[key]
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].member > entries[j].member
	})
	return nil
}

func (s *fakeStream) RevRange(ctx context.Context, key string, q RangeQuery) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failKeys[key]; err != nil {
		return nil, err
	}
	var out [][]byte
	skip := q.Offset
	for _, e := range s.data[key] {
		if q.Max != 0 && e.score > q.Max {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		out = append(out, []byte(e.member))
	}
	return out, nil
}

func (s *fakeStream) Len(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data[key])), nil
}

func (s *fakeStream) Trim(ctx context.Context, key string, policy TrimPolicy) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trims = append(s.trims, policy)
	if s.trimErr != nil {
		return 0, s.trimErr
	}
	entries := s.data[key]
	kept := entries[:0]
	var removed int64
	for i, e := range entries {
		if (policy.MinScore > 0 && e.score < policy.MinScore) || (policy.MaxLen > 0 && int64(i) >= policy.MaxLen) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.data[key] = kept
	return removed, nil
}

func (s *fakeStream) ScanKeys(ctx context.Context, match string, fn func(key string) error) error {
	if s.scanErr != nil {
		return s.scanErr
	}
	s.mu.Lock()
	var keys []string
	for k := range s.data {
		if ok, _ := path.Match(match, k); ok {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStream) members(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.data[key]))
	for i, e := range s.data[key] {
		out[i] = e.member
	}
	return out
}

type fakeFollowers struct {
	ids []int64
	err error
}

func (f fakeFollowers) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	return f.ids, f.err
}

var errBoom = errors.New("boom")
