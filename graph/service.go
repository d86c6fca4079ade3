// Package graph composes the cache, pagination and feed layers into the
// read and write use-cases of the content graph.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/domain"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/pagination"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"github.com/goliatone/go-graph-cache/repositorycache"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = domain.ErrNotFound

// ErrInvalidInput is returned for writes missing required fields.
var ErrInvalidInput = errors.New("graph: invalid input")

// Edges is the persistence of relations between entities.
type Edges interface {
	CreateBlock(ctx context.Context, b *domain.Block) (*domain.Block, error)
	GetBlock(ctx context.Context, id int64) (*domain.Block, error)
	Connect(ctx context.Context, channelID, blockID, userID int64) (*domain.Connection, bool, error)
	Follow(ctx context.Context, followerID int64, followableType string, followableID int64) (*domain.Follow, error)
	Followers(ctx context.Context, followableType string, followableID int64) ([]int64, error)
	ChannelBlocks(channelID int64) pagination.Source[domain.Block]
	UserChannels(userID int64) pagination.Source[domain.Channel]
	PublicChannels() pagination.Source[domain.Channel]
}

// TTLs of the cached views.
type TTLs struct {
	Entity    time.Duration
	Listing   time.Duration
	Followers time.Duration
}

// DefaultTTLs returns the TTLs used when none are configured.
func DefaultTTLs() TTLs {
	return TTLs{
		Entity:    15 * time.Minute,
		Listing:   60 * time.Second,
		Followers: 5 * time.Minute,
	}
}

// Service implements the content graph use-cases.
type Service struct {
	users       *repositorycache.CachedRepository[*domain.User]
	channels    *repositorycache.CachedRepository[*domain.Channel]
	edges       Edges
	listings    *cache.ReadThrough
	invalidator *cache.Invalidator
	assembler   *pagination.Assembler
	publisher   feed.Publisher
	feeds       *feed.Reader
	ttls        TTLs
	logger      logger.Logger
	now         func() time.Time
}

// Deps are the collaborators of a Service. Users, Channels, Edges, Listings
// and Feeds are required.
type Deps struct {
	Users       *repositorycache.CachedRepository[*domain.User]
	Channels    *repositorycache.CachedRepository[*domain.Channel]
	Edges       Edges
	Listings    *cache.ReadThrough
	Invalidator *cache.Invalidator
	Assembler   *pagination.Assembler
	Publisher   feed.Publisher
	Feeds       *feed.Reader
	TTLs        TTLs
	Logger      logger.Logger
	Clock       func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	s := &Service{
		users:       d.Users,
		channels:    d.Channels,
		edges:       d.Edges,
		listings:    d.Listings,
		invalidator: d.Invalidator,
		assembler:   d.Assembler,
		publisher:   d.Publisher,
		feeds:       d.Feeds,
		ttls:        d.TTLs,
		logger:      logger.OrNop(d.Logger),
		now:         d.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.assembler == nil {
		s.assembler = pagination.NewAssembler(nil, pagination.DefaultLimits(), s.logger)
	}
	if s.invalidator == nil {
		s.invalidator = cache.NewInvalidator(s.listings, s.logger, nil)
	}
	if s.ttls == (TTLs{}) {
		s.ttls = DefaultTTLs()
	}
	return s
}

// Assembler returns the pagination assembler.
func (s *Service) Assembler() *pagination.Assembler {
	return s.assembler
}

// User returns the user with id.
func (s *Service) User(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, domain.IDString(id))
}

// Channel returns the channel with id.
func (s *Service) Channel(ctx context.Context, id int64) (*domain.Channel, error) {
	return s.channels.GetByID(ctx, domain.IDString(id))
}

// UpdateUser persists u and refreshes its cache entry.
func (s *Service) UpdateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u == nil || u.ID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.users.Update(ctx, u)
}

func (s *Service) publish(ctx context.Context, a feed.Activity) {
	if s.publisher == nil {
		return
	}
	// The write already committed; a dropped request must not drop the activity.
	ctx = context.WithoutCancel(ctx)

	report, err := s.publisher.Publish(ctx, a)
	switch {
	case err == nil:
		s.logger.Debug("activity published",
			logger.String("activity", a.ID),
			logger.String("verb", string(a.Verb)),
			logger.Int("delivered", report.Delivered),
			logger.Bool("queued", report.Queued))
	case errors.Is(err, feed.ErrFanOutPartialFailure):
		s.logger.Warn("activity partially published",
			logger.String("activity", a.ID),
			logger.Error(err))
	default:
		s.logger.Error("activity publish failed",
			logger.String("activity", a.ID),
			logger.String("verb", string(a.Verb)),
			logger.Error(err))
	}
}
