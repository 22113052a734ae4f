package taskrun

import (
	"context"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// Output-directory creation retries with exponential backoff plus a
// bounded random jitter: five retries, a 1s base delay growing by a
// factor of 1.6 each attempt, and up to 4s of jitter on top.
const (
	dirRetries       = 5
	dirBackoffBase   = 1 * time.Second
	dirBackoffFactor = 1.6
	dirBackoffJitter = 4 * time.Second
)

// dirBackoffDelays returns the per-retry base delays, jitter excluded.
func dirBackoffDelays() []time.Duration {
	delays := make([]time.Duration, dirRetries)
	d := dirBackoffBase
	for i := range delays {
		delays[i] = d
		d = time.Duration(float64(d) * dirBackoffFactor)
	}
	return delays
}

// mkdirWithRetry creates dir (and parents), retrying on failure with
// the backoff schedule above. NFS-backed report/product roots are the
// reason this retries at all: a freshly-created parent directory can
// transiently fail a child mkdir under some network filesystems.
func mkdirWithRetry(ctx context.Context, dir string) error {
	delays := dirBackoffDelays()
	var lastErr error
	for attempt := 0; attempt <= len(delays); attempt++ {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == len(delays) {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(dirBackoffJitter)))
		select {
		case <-time.After(delays[attempt] + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// createRunDirs creates the report-side output directory and, for
// execution runs, the product-side directory concurrently: the two
// output roots are independent filesystems in production and neither
// creation should wait on the other.
func createRunDirs(ctx context.Context, dirs ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dirs {
		d := d
		if d == "" {
			continue
		}
		g.Go(func() error { return mkdirWithRetry(gctx, d) })
	}
	return g.Wait()
}
