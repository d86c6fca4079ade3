package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheUnavailable marks failures of the backing store (connection refused,
// timeouts, protocol errors). A miss is never reported with this error.
var ErrCacheUnavailable = errors.New("cache: store unavailable")

// ErrInvalidResultType is returned when a coalesced computation yields a value
// of an unexpected type.
var ErrInvalidResultType = errors.New("cache: invalid result type")

// Store is the key-value contract shared by every cache backend.
//
// Get reports a miss as (nil, false, nil). Backend failures are returned as
// errors wrapping ErrCacheUnavailable so callers can tell an outage from an
// absent key. Set overwrites unconditionally and resets the TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PrefixDeleter is implemented by stores able to drop every key sharing a prefix.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// FetchFn computes a value from the source of truth on a cache miss.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Unavailable wraps err so that errors.Is(err, ErrCacheUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCacheUnavailable) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// StoreError describes a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "cache: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrCacheUnavailable, e.Err}
}
