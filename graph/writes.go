package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/domain"
	"github.com/goliatone/go-graph-cache/feed"
)

// CreateChannel persists a channel owned by actorID, drops the listings it
// appears in and publishes a "created" activity.
func (s *Service) CreateChannel(ctx context.Context, actorID int64, c *domain.Channel) (*domain.Channel, error) {
	if c == nil || strings.TrimSpace(c.Title) == "" {
		return nil, fmt.Errorf("%w: channel title is required", ErrInvalidInput)
	}
	c.OwnerID = actorID

	created, err := s.channels.Create(ctx, c)
	if err != nil {
		return nil, err
	}

	s.evictChannelListings(ctx, created.OwnerID)
	s.publish(ctx, feed.NewActivity(actorID, feed.VerbCreated, channelSubject(created), s.now()))
	return created, nil
}

// UpdateChannel persists c and overwrites its cache entry with the stored row.
func (s *Service) UpdateChannel(ctx context.Context, c *domain.Channel) (*domain.Channel, error) {
	if c == nil || c.ID == 0 {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidInput)
	}

	updated, err := s.channels.Update(ctx, c)
	if err != nil {
		return nil, err
	}

	s.evictChannelListings(ctx, updated.OwnerID)
	return updated, nil
}

// ConnectBlock places a block in a channel, creating the block first when it
// has no id yet, and publishes a "connected" activity. Connecting a block
// that is already in the channel changes nothing and publishes nothing.
func (s *Service) ConnectBlock(ctx context.Context, actorID, channelID int64, b *domain.Block) (*domain.Block, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: block is required", ErrInvalidInput)
	}
	if _, err := s.Channel(ctx, channelID); err != nil {
		return nil, err
	}

	if b.ID == 0 {
		b.UserID = actorID
		created, err := s.edges.CreateBlock(ctx, b)
		if err != nil {
			return nil, err
		}
		b = created
	} else {
		existing, err := s.edges.GetBlock(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b = existing
	}

	_, created, err := s.edges.Connect(ctx, channelID, b.ID, actorID)
	if err != nil {
		return nil, err
	}
	if !created {
		return b, nil
	}

	s.invalidator.EvictRelation(ctx, "channel", channelID, RelationBlocks)
	s.publish(ctx, feed.NewActivity(actorID, feed.VerbConnected, feed.BlockSubject{
		ID:        b.ID,
		ChannelID: channelID,
		Title:     b.Title,
	}, s.now()))
	return b, nil
}

// Follow makes actorID follow a user or a channel and publishes a
// "followed" activity.
func (s *Service) Follow(ctx context.Context, actorID int64, followableType string, targetID int64) error {
	var subject feed.Subject
	switch followableType {
	case domain.FollowUser:
		if actorID == targetID {
			return fmt.Errorf("%w: users cannot follow themselves", ErrInvalidInput)
		}
		u, err := s.User(ctx, targetID)
		if err != nil {
			return err
		}
		subject = feed.UserSubject{ID: u.ID, Name: u.Name}
	case domain.FollowChannel:
		c, err := s.Channel(ctx, targetID)
		if err != nil {
			return err
		}
		subject = channelSubject(c)
	default:
		return fmt.Errorf("%w: cannot follow %q", ErrInvalidInput, followableType)
	}

	if _, err := s.edges.Follow(ctx, actorID, followableType, targetID); err != nil {
		return err
	}

	s.invalidator.Evict(ctx, cache.RelationKey(followableType, targetID, RelationFollowers))
	s.publish(ctx, feed.NewActivity(actorID, feed.VerbFollowed, subject, s.now()))
	return nil
}

func (s *Service) evictChannelListings(ctx context.Context, ownerID int64) {
	s.invalidator.EvictRelation(ctx, "user", ownerID, RelationChannels)
	s.invalidator.EvictPrefix(ctx, PublicChannelsKey)
}

func channelSubject(c *domain.Channel) feed.ChannelSubject {
	return feed.ChannelSubject{ID: c.ID, Title: c.Title, OwnerID: c.OwnerID}
}
