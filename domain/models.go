// Package domain holds the content graph models shared by persistence, cache and HTTP.
package domain

import (
	"errors"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// Channel visibility.
const (
	StatusPublic  = "public"
	StatusClosed  = "closed"
	StatusPrivate = "private"
)

// Followable types.
const (
	FollowUser    = "user"
	FollowChannel = "channel"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Slug      string    `bun:"slug,unique" json:"slug"`
	Role      string    `bun:"role,notnull,default:'member'" json:"role,omitempty"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

type Channel struct {
	bun.BaseModel `bun:"table:channels,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	OwnerID   int64     `bun:"owner_id,notnull" json:"ownerId"`
	Title     string    `bun:"title,notnull" json:"title"`
	Status    string    `bun:"status,notnull,default:'public'" json:"status"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Block is a piece of content. Blocks belong to channels through connections.
type Block struct {
	bun.BaseModel `bun:"table:blocks,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"userId"`
	Title     string    `bun:"title" json:"title"`
	Content   string    `bun:"content" json:"content"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Connection places a block in a channel.
type Connection struct {
	bun.BaseModel `bun:"table:connections,alias:conn"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	ChannelID int64     `bun:"channel_id,notnull" json:"channelId"`
	BlockID   int64     `bun:"block_id,notnull" json:"blockId"`
	UserID    int64     `bun:"user_id,notnull" json:"userId"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Follow is an edge from a user to a user or a channel.
type Follow struct {
	bun.BaseModel `bun:"table:follows,alias:f"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	FollowerID     int64     `bun:"follower_id,notnull" json:"followerId"`
	FollowableType string    `bun:"followable_type,notnull" json:"followableType"`
	FollowableID   int64     `bun:"followable_id,notnull" json:"followableId"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// IDString returns the id in the form used by repository lookups and cache keys.
func IDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// UserID reads the id of a user record.
func UserID(u *User) (string, bool) {
	if u == nil || u.ID == 0 {
		return "", false
	}
	return IDString(u.ID), true
}

// ChannelID reads the id of a channel record.
func ChannelID(c *Channel) (string, bool) {
	if c == nil || c.ID == 0 {
		return "", false
	}
	return IDString(c.ID), true
}
