// Package repositorycache provides a cached repository decorator for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a base repository and serves GetByID from a
// cache.ReadThrough keyed "<type>:<id>" (user:42, channel:5). Writes go to
// the base repository first; once they succeed the decorator refreshes the
// cache entry with the written record, so the next read is warm instead of
// forcing a re-fetch. Deletes evict the entry.
//
// # Basic Usage
//
//	rt := cache.NewReadThrough(store, cache.WithLayer("entity"))
//	users := repositorycache.New[*domain.User](base, rt,
//		repositorycache.WithTTL[*domain.User](15*time.Minute))
//
//	u, err := users.GetByID(ctx, "42") // cached under user:42
//	u.Name = "ana"
//	u, err = users.Update(ctx, u)       // user:42 now holds the new record
//
// The key namespace defaults to the snake_case name of the record type and
// can be set with WithEntityType.
//
// # Pass-through Operations
//
// GetByID calls carrying select criteria bypass the cache: criteria are
// functions over a bun query and cannot be part of a key.
//
// # Failure Semantics
//
// A cache failure never fails a repository call. Reads fall back to the base
// repository; refresh and eviction failures after a committed write are
// logged and dropped.
//
// # Key Registry
//
// TrackingStore records the keys it writes in a KeyRegistry (xsync map) and
// answers DeleteByPrefix from it. It lets backends without a cheap prefix
// delete evict listing families such as channel:5:blocks:* without scanning.
package repositorycache
