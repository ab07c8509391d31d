// Package concurrent runs bounded fan-out work with first-error cancellation.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds fan-out when the caller passes a non-positive limit.
const DefaultLimit = 10

// Map applies fn to every item with at most limit calls in flight and returns
// results in input order. The first error cancels the context passed to the
// remaining calls and is returned.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ForEach is Map without results.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	_, err := Map(ctx, items, limit, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	return err
}
