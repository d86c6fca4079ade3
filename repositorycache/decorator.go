package repositorycache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	repository "github.com/goliatone/go-repository-bun"
)

// DefaultTTL is used when no TTL option is given.
const DefaultTTL = 15 * time.Minute

// CachedRepository decorates a base repository with read-through caching of
// single entities under "<type>:<id>" and refresh-on-write after successful writes.
type CachedRepository[T any] struct {
	base        Repository[T]
	rt          *cache.ReadThrough
	invalidator *cache.Invalidator
	entityType  string
	ttl         time.Duration
	idFunc      func(T) (string, bool)
	logger      logger.Logger
}

// Option customises a CachedRepository.
type Option[T any] func(*CachedRepository[T])

// WithTTL sets the TTL of cached entities.
func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(c *CachedRepository[T]) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithEntityType sets the key namespace. It defaults to the snake_case name of T.
func WithEntityType[T any](entityType string) Option[T] {
	return func(c *CachedRepository[T]) {
		if entityType != "" {
			c.entityType = entityType
		}
	}
}

// WithIDFunc sets how the ID of a record is read. Without it an exported
// ID field is looked up by reflection.
func WithIDFunc[T any](fn func(T) (string, bool)) Option[T] {
	return func(c *CachedRepository[T]) {
		if fn != nil {
			c.idFunc = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger[T any](l logger.Logger) Option[T] {
	return func(c *CachedRepository[T]) {
		c.logger = logger.OrNop(l)
	}
}

// WithInvalidator sets the write hook. By default one is built over rt.
func WithInvalidator[T any](inv *cache.Invalidator) Option[T] {
	return func(c *CachedRepository[T]) {
		if inv != nil {
			c.invalidator = inv
		}
	}
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base Repository[T], rt *cache.ReadThrough, opts ...Option[T]) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:       base,
		rt:         rt,
		entityType: entityTypeOf[T](),
		ttl:        DefaultTTL,
		logger:     logger.NewNopLogger(),
	}
	c.idFunc = c.extractID
	for _, opt := range opts {
		opt(c)
	}
	if c.invalidator == nil {
		c.invalidator = cache.NewInvalidator(rt, c.logger, nil)
	}
	return c
}

// EntityType returns the key namespace, e.g. "user".
func (c *CachedRepository[T]) EntityType() string {
	return c.entityType
}

// Key returns the cache key of the entity with id.
func (c *CachedRepository[T]) Key(id any) string {
	return cache.Key(c.entityType, id)
}

// GetByID retrieves a record by ID, with caching. Calls carrying criteria
// shape the query in ways the key cannot express and bypass the cache.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return cache.GetOrCompute(ctx, c.rt, c.Key(id), c.ttl, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id)
	})
}

// Create creates a new record and caches it so the first read is warm.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.refresh(ctx, result)
	}
	return result, err
}

// Update updates a record and overwrites its cache entry with the result.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.refresh(ctx, result)
	}
	return result, err
}

// Delete deletes a record and evicts its cache entry.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err != nil {
		return err
	}
	if id, ok := c.idFunc(record); ok {
		c.invalidator.Evict(ctx, c.Key(id))
	}
	return nil
}

func (c *CachedRepository[T]) refresh(ctx context.Context, record T) {
	id, ok := c.idFunc(record)
	if !ok {
		c.logger.Warn("cannot refresh cache entry, record has no id",
			logger.String("type", c.entityType))
		return
	}
	c.invalidator.OnEntityUpdated(ctx, c.entityType, id, record, c.ttl)
}

// extractID attempts to extract an ID field from a record using reflection
func (c *CachedRepository[T]) extractID(record T) (string, bool) {
	v := reflect.ValueOf(record)
	if !v.IsValid() {
		return "", false
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}

	for _, fieldName := range []string{"ID", "Id"} {
		field := v.FieldByName(fieldName)
		if !field.IsValid() || !field.CanInterface() || field.IsZero() {
			continue
		}
		return fmt.Sprintf("%v", field.Interface()), true
	}
	return "", false
}
