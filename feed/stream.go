package feed

import (
	"context"

	"github.com/goliatone/go-graph-cache/cache"
)

// GlobalKey is the stream every activity is mirrored to when the global feed is enabled.
const GlobalKey = "feed:global"

// FeedKeyPattern matches every per-user feed key.
const FeedKeyPattern = "user:*:feed"

// Key returns the stream key of userID's feed, "user:{id}:feed".
func Key(userID int64) string {
	return cache.RelationKey("user", userID, "feed")
}

// RangeQuery selects a newest-first window of a stream. Members sharing a
// score come in descending byte order, as ZREVRANGEBYSCORE returns them.
type RangeQuery struct {
	// Max is an inclusive upper bound on the score. Zero means unbounded.
	Max int64
	// Offset skips that many members of the window.
	Offset int
	// Limit caps the number of members returned. Zero means all.
	Limit int
}

// TrimPolicy bounds the size of a stream.
type TrimPolicy struct {
	// MaxLen keeps at most this many of the highest scored members. Zero disables it.
	MaxLen int64
	// MinScore drops members scored strictly below it. Zero disables it.
	MinScore int64
}

// IsZero reports whether the policy removes nothing.
func (p TrimPolicy) IsZero() bool {
	return p.MaxLen <= 0 && p.MinScore <= 0
}

// Stream is a keyed collection of scored members, e.g. a Redis sorted set.
// Members are unique per key; appending an existing member updates its score.
type Stream interface {
	Append(ctx context.Context, key string, score int64, member []byte) error
	RevRange(ctx context.Context, key string, q RangeQuery) ([][]byte, error)
	Len(ctx context.Context, key string) (int64, error)
	Trim(ctx context.Context, key string, policy TrimPolicy) (int64, error)
	ScanKeys(ctx context.Context, match string, fn func(key string) error) error
}
