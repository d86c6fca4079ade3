package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-graph-cache/domain"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Repository is a minimal bun repository for one model. It satisfies the
// GetByID/Create/Update/Delete subset of go-repository-bun's Repository so it
// can be wrapped by repositorycache.
type Repository[T any] struct {
	db    bun.IDB
	hooks Hooks[T]
	now   func() time.Time
}

// Hooks stamp records before they are written.
type Hooks[T any] struct {
	BeforeInsert func(*T, time.Time)
	BeforeUpdate func(*T, time.Time)
}

// NewRepository creates a repository for *T.
func NewRepository[T any](db bun.IDB, hooks Hooks[T]) *Repository[T] {
	return &Repository[T]{db: db, hooks: hooks, now: time.Now}
}

// NewUserRepository creates the users repository.
func NewUserRepository(db bun.IDB) *Repository[domain.User] {
	return NewRepository(db, Hooks[domain.User]{
		BeforeInsert: func(u *domain.User, now time.Time) {
			if u.Role == "" {
				u.Role = "member"
			}
			u.CreatedAt, u.UpdatedAt = now, now
		},
		BeforeUpdate: func(u *domain.User, now time.Time) {
			u.UpdatedAt = now
		},
	})
}

// NewChannelRepository creates the channels repository.
func NewChannelRepository(db bun.IDB) *Repository[domain.Channel] {
	return NewRepository(db, Hooks[domain.Channel]{
		BeforeInsert: func(c *domain.Channel, now time.Time) {
			if c.Status == "" {
				c.Status = domain.StatusPublic
			}
			c.CreatedAt, c.UpdatedAt = now, now
		},
		BeforeUpdate: func(c *domain.Channel, now time.Time) {
			c.UpdatedAt = now
		},
	})
}

// GetByID loads the record with the given primary key.
func (r *Repository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*T, error) {
	record := new(T)
	q := r.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id)
	for _, c := range criteria {
		q = c(q)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return record, nil
}

// Create inserts record and returns it with its generated id.
func (r *Repository[T]) Create(ctx context.Context, record *T, criteria ...repository.InsertCriteria) (*T, error) {
	if r.hooks.BeforeInsert != nil {
		r.hooks.BeforeInsert(record, r.now().UTC())
	}
	q := r.db.NewInsert().Model(record)
	for _, c := range criteria {
		q = c(q)
	}
	if _, err := q.Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return record, nil
}

// Update writes the non-zero fields of record by primary key and returns
// the full row as stored.
func (r *Repository[T]) Update(ctx context.Context, record *T, criteria ...repository.UpdateCriteria) (*T, error) {
	if r.hooks.BeforeUpdate != nil {
		r.hooks.BeforeUpdate(record, r.now().UTC())
	}
	q := r.db.NewUpdate().Model(record).WherePK().OmitZero()
	for _, c := range criteria {
		q = c(q)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.ErrNotFound
	}
	if err := r.db.NewSelect().Model(record).WherePK().Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return record, nil
}

// Delete removes record by primary key.
func (r *Repository[T]) Delete(ctx context.Context, record *T) error {
	res, err := r.db.NewDelete().Model(record).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
