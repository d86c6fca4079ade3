package pagination

import (
	"context"
	"fmt"

	"github.com/goliatone/go-graph-cache/cursor"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Lookahead is the number of extra items fetched beyond the page size to
// detect whether a next page exists.
const Lookahead = 1

// Source is an ordered collection that can be read in pages.
type Source[T any] interface {
	// Fetch returns up to limit items strictly after the given position in
	// the collection's natural order.
	Fetch(ctx context.Context, after cursor.Position, limit int) ([]T, error)
	// Count returns the size of the whole collection.
	Count(ctx context.Context) (int, error)
	// Position returns the cursor position of item.
	Position(item T) cursor.Position
}

// Request is an inbound page request.
type Request struct {
	Token  string
	Limit  int
	Caller Caller
}

// PageResult is one page of a collection.
type PageResult[T any] struct {
	Total int     `json:"total"`
	Next  *string `json:"next"`
	Data  []T     `json:"data"`
}

// Assembler holds the cursor codec and limits shared by every listing.
type Assembler struct {
	codec  *cursor.Codec
	limits Limits
	logger logger.Logger
}

// NewAssembler creates an Assembler. A nil codec uses cursor.NewCodec().
func NewAssembler(codec *cursor.Codec, limits Limits, l logger.Logger) *Assembler {
	if codec == nil {
		codec = cursor.NewCodec()
	}
	return &Assembler{
		codec:  codec,
		limits: limits.normalized(),
		logger: logger.OrNop(l),
	}
}

// Codec returns the cursor codec.
func (a *Assembler) Codec() *cursor.Codec {
	return a.codec
}

// Limits returns the effective page limits.
func (a *Assembler) Limits() Limits {
	return a.limits
}

// Paginate returns the page of src that follows req.Token.
//
// An empty or malformed token starts from the newest item. The limit is
// clamped for req.Caller before src is queried. Next is set to the position
// of the last returned item only when more items follow it.
func Paginate[T any](ctx context.Context, a *Assembler, src Source[T], req Request) (PageResult[T], error) {
	after, err := a.codec.Decode(req.Token)
	if err != nil {
		a.logger.Debug("ignoring invalid pagination cursor",
			logger.String("token", req.Token),
			logger.Error(err))
		after = a.codec.Resolve("")
	}

	limit := a.limits.Clamp(req.Limit, req.Caller)

	var (
		items []T
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ferr error
		items, ferr = src.Fetch(gctx, after, limit+Lookahead)
		if ferr != nil {
			return fmt.Errorf("fetch page: %w", ferr)
		}
		return nil
	})
	g.Go(func() error {
		var cerr error
		total, cerr = src.Count(gctx)
		if cerr != nil {
			return fmt.Errorf("count collection: %w", cerr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return PageResult[T]{}, err
	}

	page := PageResult[T]{Total: total, Data: items}
	if len(items) > limit {
		page.Data = items[:limit]
		next := a.codec.Encode(src.Position(page.Data[limit-1]))
		page.Next = &next
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	return page, nil
}
