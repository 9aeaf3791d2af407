package detect

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nhle/pollwatch/internal/source"
)

// WalkResult is the outcome of enumerating all reachable pages in one tick.
type WalkResult struct {
	// Items holds every item gathered, in provider enumeration order.
	Items []source.Item

	// Cursor is the continuation token to store for the next tick: the
	// final page's token when the walk completed, the last confirmed
	// token when it stopped early, or the seed cursor unchanged when the
	// provider issued none.
	Cursor string

	// Invalidated is true when the provider rejected the seed cursor as
	// stale. Items is empty and Cursor is cleared; the caller drops the
	// stored cursor and resyncs from scratch next tick.
	Invalidated bool
}

// Walker enumerates every page of a remote listing, resuming from a
// stored continuation cursor.
type Walker struct {
	lister source.Lister
	logger *slog.Logger
}

// NewWalker creates a Walker over the given lister.
func NewWalker(lister source.Lister, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{lister: lister, logger: logger}
}

// Walk lists target starting from cursor and follows next-page links until
// exhausted.
//
// A failure of the initial listing call is returned to the caller, which
// decides whether to skip the tick. A failure fetching a subsequent page
// stops the walk and returns everything accumulated so far together with
// the last confirmed cursor: mid-walk trouble never discards progress nor
// corrupts the stored cursor. A cursor-invalidation signal at any point
// aborts with Invalidated set and no items.
func (w *Walker) Walk(ctx context.Context, target, cursor string) (WalkResult, error) {
	res := WalkResult{Cursor: cursor}

	page, err := w.lister.List(ctx, target, cursor)
	if err != nil {
		if errors.Is(err, source.ErrCursorInvalid) {
			w.logger.Warn("stored cursor rejected by provider, forcing resync",
				slog.String("target", target),
			)
			return WalkResult{Invalidated: true}, nil
		}
		return res, err
	}

	for {
		res.Items = append(res.Items, page.Items...)
		if page.Cursor != "" {
			res.Cursor = page.Cursor
		}

		if page.NextLink == "" {
			return res, nil
		}

		next, err := w.lister.FetchPage(ctx, page.NextLink)
		if err != nil {
			if errors.Is(err, source.ErrCursorInvalid) {
				return WalkResult{Invalidated: true}, nil
			}
			// Keep the partial result and the last confirmed cursor;
			// the next tick resumes from there.
			w.logger.Warn("page fetch failed mid-walk, keeping partial result",
				slog.String("target", target),
				slog.Int("items", len(res.Items)),
				slog.String("error", err.Error()),
			)
			return res, nil
		}
		page = next
	}
}
