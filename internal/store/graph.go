package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ecodeclub/ekit/slice"
	"github.com/goliatone/go-graph-cache/cursor"
	"github.com/goliatone/go-graph-cache/domain"
	"github.com/goliatone/go-graph-cache/pagination"
	"github.com/uptrace/bun"
)

// Graph holds the edge queries: listings, connections and follows.
type Graph struct {
	db  bun.IDB
	now func() time.Time
}

// NewGraph creates a Graph over db.
func NewGraph(db bun.IDB) *Graph {
	return &Graph{db: db, now: time.Now}
}

// CreateBlock inserts a block.
func (g *Graph) CreateBlock(ctx context.Context, b *domain.Block) (*domain.Block, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = g.now().UTC()
	}
	if _, err := g.db.NewInsert().Model(b).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}
	return b, nil
}

// GetBlock loads a block.
func (g *Graph) GetBlock(ctx context.Context, id int64) (*domain.Block, error) {
	b := new(domain.Block)
	if err := g.db.NewSelect().Model(b).Where("b.id = ?", id).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

// Connect places block in channel on behalf of user. A block sits in a
// channel at most once; connecting it again returns created == false and
// leaves the existing connection untouched.
func (g *Graph) Connect(ctx context.Context, channelID, blockID, userID int64) (*domain.Connection, bool, error) {
	c := &domain.Connection{
		ChannelID: channelID,
		BlockID:   blockID,
		UserID:    userID,
		CreatedAt: g.now().UTC(),
	}
	res, err := g.db.NewInsert().Model(c).On("CONFLICT DO NOTHING").Exec(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert connection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert connection: %w", err)
	}
	return c, n > 0, nil
}

// Follow records that followerID follows the given user or channel. Following
// twice is not an error.
func (g *Graph) Follow(ctx context.Context, followerID int64, followableType string, followableID int64) (*domain.Follow, error) {
	f := &domain.Follow{
		FollowerID:     followerID,
		FollowableType: followableType,
		FollowableID:   followableID,
		CreatedAt:      g.now().UTC(),
	}
	// An ignored duplicate returns no row to scan the id into.
	_, err := g.db.NewInsert().Model(f).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("insert follow: %w", err)
	}
	return f, nil
}

// Followers returns the ids of users following the given user or channel.
func (g *Graph) Followers(ctx context.Context, followableType string, followableID int64) ([]int64, error) {
	var rows []domain.Follow
	err := g.db.NewSelect().
		Model(&rows).
		Column("follower_id").
		Where("followable_type = ?", followableType).
		Where("followable_id = ?", followableID).
		Order("follower_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select followers: %w", err)
	}
	return slice.Map(rows, func(_ int, f domain.Follow) int64 {
		return f.FollowerID
	}), nil
}

// FollowerIDs implements feed.FollowerSource.
func (g *Graph) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	return g.Followers(ctx, domain.FollowUser, userID)
}

// ChannelBlocks lists the blocks connected to a channel, newest block first.
func (g *Graph) ChannelBlocks(channelID int64) pagination.Source[domain.Block] {
	return &Listing[domain.Block]{
		fetch: func(ctx context.Context, after cursor.Position, limit int) ([]domain.Block, error) {
			var blocks []domain.Block
			q := g.db.NewSelect().
				Model(&blocks).
				Join("JOIN connections AS conn ON conn.block_id = b.id").
				Where("conn.channel_id = ?", channelID).
				Order("b.id DESC").
				Limit(limit)
			if id, ok := after.IDValue(); ok {
				q = q.Where("b.id < ?", id)
			}
			if err := q.Scan(ctx); err != nil {
				return nil, fmt.Errorf("select channel blocks: %w", err)
			}
			return blocks, nil
		},
		count: func(ctx context.Context) (int, error) {
			return g.db.NewSelect().
				Model((*domain.Connection)(nil)).
				Where("channel_id = ?", channelID).
				Count(ctx)
		},
		position: func(b domain.Block) cursor.Position { return cursor.ID(b.ID) },
	}
}

// UserChannels lists the channels owned by a user, newest first.
func (g *Graph) UserChannels(userID int64) pagination.Source[domain.Channel] {
	return g.channels(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("c.owner_id = ?", userID)
	})
}

// PublicChannels lists every public channel, newest first.
func (g *Graph) PublicChannels() pagination.Source[domain.Channel] {
	return g.channels(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("c.status = ?", domain.StatusPublic)
	})
}

func (g *Graph) channels(filter func(*bun.SelectQuery) *bun.SelectQuery) *Listing[domain.Channel] {
	return &Listing[domain.Channel]{
		fetch: func(ctx context.Context, after cursor.Position, limit int) ([]domain.Channel, error) {
			var channels []domain.Channel
			q := filter(g.db.NewSelect().Model(&channels)).Order("c.id DESC").Limit(limit)
			if id, ok := after.IDValue(); ok {
				q = q.Where("c.id < ?", id)
			}
			if err := q.Scan(ctx); err != nil {
				return nil, fmt.Errorf("select channels: %w", err)
			}
			return channels, nil
		},
		count: func(ctx context.Context) (int, error) {
			return filter(g.db.NewSelect().Model((*domain.Channel)(nil))).Count(ctx)
		},
		position: func(c domain.Channel) cursor.Position { return cursor.ID(c.ID) },
	}
}

var _ pagination.Source[domain.Block] = (*Listing[domain.Block])(nil)

// Listing is one ordered query exposed as a pagination.Source.
type Listing[T any] struct {
	fetch    func(ctx context.Context, after cursor.Position, limit int) ([]T, error)
	count    func(ctx context.Context) (int, error)
	position func(T) cursor.Position
}

// Fetch implements pagination.Source.
func (l *Listing[T]) Fetch(ctx context.Context, after cursor.Position, limit int) ([]T, error) {
	items, err := l.fetch(ctx, after, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Count implements pagination.Source.
func (l *Listing[T]) Count(ctx context.Context) (int, error) {
	return l.count(ctx)
}

// Position implements pagination.Source.
func (l *Listing[T]) Position(item T) cursor.Position {
	return l.position(item)
}
