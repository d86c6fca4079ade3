// Package httpapi exposes the content graph over HTTP with gin.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-graph-cache/domain"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/graph"
	"github.com/goliatone/go-graph-cache/pagination"
	"github.com/goliatone/go-graph-cache/pkg/logger"
)

// Query parameters of every listing.
const (
	ParamCursor = "last_id"
	ParamLimit  = "limit"
)

// Service is the part of graph.Service the handlers call.
type Service interface {
	User(ctx context.Context, id int64) (*domain.User, error)
	Channel(ctx context.Context, id int64) (*domain.Channel, error)
	ChannelBlocks(ctx context.Context, channelID int64, req pagination.Request) (pagination.PageResult[domain.Block], error)
	UserChannels(ctx context.Context, userID int64, req pagination.Request) (pagination.PageResult[domain.Channel], error)
	GlobalChannels(ctx context.Context, req pagination.Request) (pagination.PageResult[domain.Channel], error)
	FeedPage(ctx context.Context, userID int64, req pagination.Request) (pagination.PageResult[feed.Activity], error)
	CreateChannel(ctx context.Context, actorID int64, c *domain.Channel) (*domain.Channel, error)
	UpdateChannel(ctx context.Context, c *domain.Channel) (*domain.Channel, error)
	ConnectBlock(ctx context.Context, actorID, channelID int64, b *domain.Block) (*domain.Block, error)
	Follow(ctx context.Context, actorID int64, followableType string, targetID int64) error
}

var _ Service = (*graph.Service)(nil)

// Handler serves the graph routes.
type Handler struct {
	svc    Service
	logger logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc Service, l logger.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.OrNop(l)}
}

// RegisterRoutes mounts the routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	users := r.Group("/users")
	users.GET("/:id", h.GetUser)
	users.GET("/:id/channels", h.ListUserChannels)
	users.GET("/:id/feed", h.ListFeed)
	users.POST("/:id/follow", h.follow(domain.FollowUser))

	channels := r.Group("/channels")
	channels.GET("", h.ListChannels)
	channels.POST("", h.CreateChannel)
	channels.GET("/:id", h.GetChannel)
	channels.PUT("/:id", h.UpdateChannel)
	channels.GET("/:id/blocks", h.ListChannelBlocks)
	channels.POST("/:id/blocks", h.ConnectBlock)
	channels.POST("/:id/follow", h.follow(domain.FollowChannel))
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	u, err := h.svc.User(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) GetChannel(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	ch, err := h.svc.Channel(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *Handler) ListChannelBlocks(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	page, err := h.svc.ChannelBlocks(c.Request.Context(), id, pageRequest(c))
	respond(h, c, page, err)
}

func (h *Handler) ListUserChannels(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	page, err := h.svc.UserChannels(c.Request.Context(), id, pageRequest(c))
	respond(h, c, page, err)
}

func (h *Handler) ListChannels(c *gin.Context) {
	page, err := h.svc.GlobalChannels(c.Request.Context(), pageRequest(c))
	respond(h, c, page, err)
}

func (h *Handler) ListFeed(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	page, err := h.svc.FeedPage(c.Request.Context(), id, pageRequest(c))
	respond(h, c, page, err)
}

// ChannelRequest is the body of channel writes.
type ChannelRequest struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

func (h *Handler) CreateChannel(c *gin.Context) {
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}
	var req ChannelRequest
	if !h.bind(c, &req) {
		return
	}
	ch, err := h.svc.CreateChannel(c.Request.Context(), caller.ID, &domain.Channel{
		Title:  req.Title,
		Status: req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *Handler) UpdateChannel(c *gin.Context) {
	if _, ok := h.requireCaller(c); !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ChannelRequest
	if !h.bind(c, &req) {
		return
	}
	ch, err := h.svc.UpdateChannel(c.Request.Context(), &domain.Channel{
		ID:     id,
		Title:  req.Title,
		Status: req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// BlockRequest is the body of a connection. A non-zero ID connects an
// existing block; otherwise a new block is created.
type BlockRequest struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) ConnectBlock(c *gin.Context) {
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}
	channelID, ok := h.pathID(c)
	if !ok {
		return
	}
	var req BlockRequest
	if !h.bind(c, &req) {
		return
	}
	b, err := h.svc.ConnectBlock(c.Request.Context(), caller.ID, channelID, &domain.Block{
		ID:      req.ID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) follow(followableType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := h.requireCaller(c)
		if !ok {
			return
		}
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		if err := h.svc.Follow(c.Request.Context(), caller.ID, followableType, id); err != nil {
			h.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func respond[T any](h *Handler, c *gin.Context, page pagination.PageResult[T], err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// pageRequest reads the cursor and limit. A malformed limit falls back to
// the default page size like a missing one.
func pageRequest(c *gin.Context) pagination.Request {
	limit, _ := strconv.Atoi(c.Query(ParamLimit))
	return pagination.Request{
		Token:  c.Query(ParamCursor),
		Limit:  limit,
		Caller: callerFrom(c),
	}
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, fmt.Errorf("%w: %q", errBadID, c.Param("id")))
		return 0, false
	}
	return id, true
}

func (h *Handler) requireCaller(c *gin.Context) (pagination.Caller, bool) {
	caller := callerFrom(c)
	if caller.ID <= 0 {
		h.fail(c, errUnauthenticated)
		return caller, false
	}
	return caller, true
}

func (h *Handler) bind(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", graph.ErrInvalidInput, err))
		return false
	}
	return true
}
