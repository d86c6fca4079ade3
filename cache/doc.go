// Package cache provides the read-through cache, key namespace and
// write-invalidation hook used by the content graph.
//
// # Overview
//
// The package exports:
//
//   - Store: the key-value contract every backend implements (get/set with TTL/delete)
//   - ReadThrough and GetOrCompute: get-or-compute-and-store over a Store
//   - Invalidator: refresh-on-write and relation eviction after committed writes
//   - KeySerializer, Key, RelationKey, QueryKey: deterministic cache keys
//   - Codec: JSON (default) and MessagePack value encoding
//
// Backends live in internal/cacheinfra (sturdyc in-process, Redis).
//
// # Basic Usage
//
//	rt := cache.NewReadThrough(store, cache.WithLayer("entity"), cache.WithLogger(l))
//	user, err := cache.GetOrCompute(ctx, rt, cache.Key("user", 42), 15*time.Minute,
//		func(ctx context.Context) (*domain.User, error) {
//			return users.GetByID(ctx, "42")
//		})
//
// # Key Namespace
//
// Keys are shared with data written by earlier deployments and must be
// reproduced exactly:
//
//   - "<type>:<id>" for single entities, e.g. user:42
//   - "<type>:<id>:<relation>" for relational listings, e.g. channel:5:followers
//   - "<type>:<id>:<relation>:<name>=<value>..." for parameterised listings,
//     e.g. user:7:channels:limit=10
//
// # Failure Semantics
//
// The cache is an optimisation, never a source of truth:
//
//   - A store failure on Get is reported as ErrCacheUnavailable. ReadThrough
//     fails open by default and reads from the source instead.
//   - A store failure on Set or Delete is logged and dropped.
//   - Fetch errors propagate and are never cached.
//   - Absent results (nil pointers, maps, slices) are not cached; empty
//     non-nil slices are.
//
// # Concurrency
//
// Concurrent misses for one key may each run their fetch function and
// overwrite each other with equivalent data. WithCoalescing collapses them
// into one call when an endpoint needs it.
package cache
