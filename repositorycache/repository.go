package repositorycache

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
)

// Repository is the subset of repository.Repository[T] the decorator needs.
// Any go-repository-bun repository satisfies it.
type Repository[T any] interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
}

var _ Repository[any] = (repository.Repository[any])(nil)
