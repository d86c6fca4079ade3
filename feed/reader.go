package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-graph-cache/cursor"
	"github.com/goliatone/go-graph-cache/pkg/logger"
)

// Reader reads feeds back newest first.
type Reader struct {
	stream Stream
	logger logger.Logger
}

// NewReader creates a Reader over stream.
func NewReader(stream Stream, l logger.Logger) *Reader {
	return &Reader{stream: stream, logger: logger.OrNop(l)}
}

// GetFeed returns every activity of userID's feed, newest first. A user
// without a feed gets an empty slice.
func (r *Reader) GetFeed(ctx context.Context, userID int64) ([]Activity, error) {
	return r.read(ctx, Key(userID), RangeQuery{})
}

// GetGlobal returns the global feed, newest first.
func (r *Reader) GetGlobal(ctx context.Context, limit int) ([]Activity, error) {
	return r.read(ctx, GlobalKey, RangeQuery{Limit: limit})
}

func (r *Reader) read(ctx context.Context, key string, q RangeQuery) ([]Activity, error) {
	out, _, err := r.window(ctx, key, q)
	return out, err
}

// window reads one range and also reports how many members it covered,
// undecodable ones included, so callers can advance an offset past them.
func (r *Reader) window(ctx context.Context, key string, q RangeQuery) ([]Activity, int, error) {
	members, err := r.stream.RevRange(ctx, key, q)
	if err != nil {
		return nil, 0, fmt.Errorf("read feed %s: %w", key, err)
	}

	out := make([]Activity, 0, len(members))
	for _, m := range members {
		var a Activity
		if err := json.Unmarshal(m, &a); err != nil {
			r.logger.Warn("skipping undecodable feed entry",
				logger.String("stream", key),
				logger.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out, len(members), nil
}

// Source returns userID's feed as a pagination source ordered by timestamp.
func (r *Reader) Source(userID int64) *Source {
	return &Source{reader: r, key: Key(userID)}
}

// Source pages through one feed. Activities are ordered by score, then by
// ID, both descending; encoded members open with the ID, so this is the order
// the stream returns equal scores in. Cursors carry the timestamp of the last
// activity seen and its ID as tie-breaker, so pages stay gapless when many
// activities share a millisecond. The first page starts at the newest
// activity.
type Source struct {
	reader *Reader
	key    string
}

// Fetch implements pagination.Source.
func (s *Source) Fetch(ctx context.Context, after cursor.Position, limit int) ([]Activity, error) {
	at, ok := after.Time()
	if !ok || after.IsOrigin() {
		return s.reader.read(ctx, s.key, RangeQuery{Limit: limit})
	}

	// The bound is inclusive: activities in the cursor's millisecond that were
	// not served yet sort after it, and the ones already served are skipped.
	q := RangeQuery{Max: at.UnixMilli(), Limit: limit}
	out := make([]Activity, 0, limit)
	for {
		batch, n, err := s.reader.window(ctx, s.key, q)
		if err != nil {
			return nil, err
		}
		for _, a := range batch {
			if len(out) == limit {
				return out, nil
			}
			if follows(after, at, a) {
				out = append(out, a)
			}
		}
		if len(out) == limit || n < limit {
			return out, nil
		}
		q.Offset += n
	}
}

// follows reports whether a sorts after the cursor position p at time at.
func follows(p cursor.Position, at time.Time, a Activity) bool {
	score := at.UnixMilli()
	switch {
	case a.Score() < score:
		return true
	case a.Score() > score:
		return false
	case p.Tie() != "":
		return a.ID < p.Tie()
	default:
		return a.Timestamp.Before(at)
	}
}

// Count implements pagination.Source.
func (s *Source) Count(ctx context.Context) (int, error) {
	n, err := s.reader.stream.Len(ctx, s.key)
	if err != nil {
		return 0, fmt.Errorf("count feed %s: %w", s.key, err)
	}
	return int(n), nil
}

// Position implements pagination.Source.
func (s *Source) Position(a Activity) cursor.Position {
	return cursor.At(a.Timestamp).WithTie(a.ID)
}
