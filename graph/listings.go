package graph

import (
	"context"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/domain"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/pagination"
)

// Listing key bases.
const (
	RelationBlocks    = "blocks"
	RelationChannels  = "channels"
	RelationFollowers = "followers"

	// PublicChannelsKey is the base of the global channel listing.
	PublicChannelsKey = "channels"
)

// ChannelBlocks returns a page of the blocks connected to a channel.
func (s *Service) ChannelBlocks(ctx context.Context, channelID int64, req pagination.Request) (pagination.PageResult[domain.Block], error) {
	if _, err := s.Channel(ctx, channelID); err != nil {
		return pagination.PageResult[domain.Block]{}, err
	}
	src := cachedSource(s, s.edges.ChannelBlocks(channelID), cache.RelationKey("channel", channelID, RelationBlocks))
	return pagination.Paginate(ctx, s.assembler, src, req)
}

// UserChannels returns a page of the channels owned by a user.
func (s *Service) UserChannels(ctx context.Context, userID int64, req pagination.Request) (pagination.PageResult[domain.Channel], error) {
	if _, err := s.User(ctx, userID); err != nil {
		return pagination.PageResult[domain.Channel]{}, err
	}
	src := cachedSource(s, s.edges.UserChannels(userID), cache.RelationKey("user", userID, RelationChannels))
	return pagination.Paginate(ctx, s.assembler, src, req)
}

// GlobalChannels returns a page of the global channel listing.
func (s *Service) GlobalChannels(ctx context.Context, req pagination.Request) (pagination.PageResult[domain.Channel], error) {
	src := cachedSource(s, s.edges.PublicChannels(), PublicChannelsKey)
	return pagination.Paginate(ctx, s.assembler, src, req)
}

// Followers returns the ids of the users following a user or a channel,
// cached under "<type>:<id>:followers".
func (s *Service) Followers(ctx context.Context, followableType string, id int64) ([]int64, error) {
	key := cache.RelationKey(followableType, id, RelationFollowers)
	return cache.GetOrCompute(ctx, s.listings, key, s.ttls.Followers, func(ctx context.Context) ([]int64, error) {
		ids, err := s.edges.Followers(ctx, followableType, id)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int64{}
		}
		return ids, nil
	})
}

// Feed returns the whole feed of a user, newest first.
func (s *Service) Feed(ctx context.Context, userID int64) ([]feed.Activity, error) {
	return s.feeds.GetFeed(ctx, userID)
}

// FeedPage returns a page of a user's feed.
func (s *Service) FeedPage(ctx context.Context, userID int64, req pagination.Request) (pagination.PageResult[feed.Activity], error) {
	return pagination.Paginate[feed.Activity](ctx, s.assembler, s.feeds.Source(userID), req)
}

func cachedSource[T any](s *Service, src pagination.Source[T], base string) pagination.Source[T] {
	return pagination.NewCachedSource(src, s.listings, s.assembler.Codec(), base, s.ttls.Listing)
}
