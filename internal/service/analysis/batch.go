package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunChunked runs n independent tasks in consecutive chunks of at most
// ceiling, waiting for a whole chunk to resolve before starting the
// next. This bounds peak concurrent upstream calls regardless of how
// many personas are selected. A task failure never aborts its siblings;
// failures come back per task in the returned slice.
func RunChunked(ctx context.Context, n, ceiling int, task func(ctx context.Context, index int) error) []error {
	errs := make([]error, n)
	if ceiling < 1 {
		ceiling = 1
	}

	for start := 0; start < n; start += ceiling {
		end := min(start+ceiling, n)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				errs[i] = task(ctx, i)
				return nil
			})
		}
		// Tasks record their own failures, so Wait never errors.
		_ = g.Wait()
	}
	return errs
}
