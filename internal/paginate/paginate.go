// Package paginate provides a generic walker over cursor-paginated
// collections with a hard ceiling against runaway pagination.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// DefaultMaxPages is the iteration ceiling applied when a walk is started
// with maxPages <= 0. No legitimate source in this domain comes anywhere
// near it; tripping it means the cursor chain is cyclic or unbounded.
const DefaultMaxPages = 1000

// ErrRunaway is returned when a walk exceeds its page ceiling. Callers must
// treat it as fatal: the cursor source is misbehaving and retrying would
// hammer the external API. See engine.ErrHalted.
var ErrRunaway = errors.New("pagination exceeded page ceiling")

// FetchFunc returns one page of items and the cursor of the next page.
// An empty next cursor ends the walk. The cursor is opaque to the walker,
// so both "next page number" and "resume after this id" styles work.
type FetchFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// Walk returns a lazy, finite, non-restartable sequence of all items
// reachable from the start cursor. Fetch errors and ErrRunaway are yielded
// as the second element; iteration stops after the first error.
func Walk[T any](ctx context.Context, fetch FetchFunc[T], start string, maxPages int) iter.Seq2[T, error] {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return func(yield func(T, error) bool) {
		var zero T
		cursor := start
		for page := 0; ; page++ {
			if page >= maxPages {
				yield(zero, fmt.Errorf("%w after %d pages (cursor %q)", ErrRunaway, page, cursor))
				return
			}
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			items, next, err := fetch(ctx, cursor)
			if err != nil {
				yield(zero, fmt.Errorf("fetching page %d (cursor %q): %w", page, cursor, err))
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			cursor = next
		}
	}
}

// Collect drains a walk into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// All fetches every item reachable from the start cursor in one call.
func All[T any](ctx context.Context, fetch FetchFunc[T], start string, maxPages int) ([]T, error) {
	return Collect(Walk(ctx, fetch, start, maxPages))
}
