// Package pagination assembles cursor-paginated pages over ordered collections.
//
// A Source exposes one ordered collection (newest first). Paginate resolves the
// request cursor, clamps the limit for the caller, fetches one look-ahead item
// to decide whether a next page exists and counts the collection concurrently:
//
//	asm := pagination.NewAssembler(cursor.NewCodec(), pagination.DefaultLimits(), log)
//	page, err := pagination.Paginate(ctx, asm, blocks, pagination.Request{
//		Token:  c.Query("last_id"),
//		Limit:  limit,
//		Caller: caller,
//	})
//
// CachedSource wraps a Source with a cache.ReadThrough so hot pages and counts
// are served from the cache store.
package pagination
