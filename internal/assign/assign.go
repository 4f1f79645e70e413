// Package assign implements the local assignment step: every point of a
// worker's shard is folded into the aggregate of its nearest centroid.
//
// The shard is split into contiguous chunks folded concurrently. Each chunk
// owns a private aggregate set; the sets are merged in chunk order once every
// chunk finished, so no aggregate is ever written by two goroutines.
package assign

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/instrument"
	"github.com/hupe1980/dkmeans/resource"
	"github.com/hupe1980/dkmeans/point"
)

// ErrEmptyCentroidSet is returned when there are no centroids to assign to.
var ErrEmptyCentroidSet = errors.New("centroid set is empty")

// checkEvery is how many points a chunk folds between context checks.
const checkEvery = 1024

// Options tunes a Step.
type Options struct {
	// Parallelism is the number of chunks. Zero means the controller's
	// worker count.
	Parallelism int

	// Controller bounds concurrent chunks process-wide. May be nil.
	Controller *resource.Controller

	// Labels, when non-nil, receives the nearest centroid index of every
	// shard point. Its length must equal the shard length.
	Labels []int

	// Recorder traces each chunk as a span. May be nil.
	Recorder *instrument.Recorder
}

// Step assigns every point in shard to its nearest centroid and returns one
// aggregate per centroid. An empty shard yields zeroed aggregates.
func Step(ctx context.Context, centroids, shard []point.Point, opts Options) (aggregate.Set, error) {
	if len(centroids) == 0 {
		return nil, ErrEmptyCentroidSet
	}

	dim, err := point.CommonDim(centroids)
	if err != nil {
		return nil, fmt.Errorf("centroids: %w", err)
	}

	if opts.Labels != nil && len(opts.Labels) != len(shard) {
		return nil, fmt.Errorf("%w: %d labels for %d points", point.ErrCardinalityMismatch, len(opts.Labels), len(shard))
	}

	k := len(centroids)
	if len(shard) == 0 {
		return aggregate.NewSet(k, dim), nil
	}

	parts := opts.Parallelism
	if parts <= 0 {
		parts = opts.Controller.MaxWorkers()
	}
	parts = min(parts, len(shard))

	partials := make([]aggregate.Set, parts)

	g, gctx := errgroup.WithContext(ctx)
	for c := range parts {
		lo, hi := chunk(len(shard), parts, c)

		g.Go(func() error {
			if err := opts.Controller.AcquireWorker(gctx); err != nil {
				return err
			}
			defer opts.Controller.ReleaseWorker()

			span := opts.Recorder.StartThread("Assign.chunk["+strconv.Itoa(c)+"]", c+1)
			defer span.End()

			set, err := fold(gctx, centroids, shard[lo:hi], dim, opts.Labels, lo)
			if err != nil {
				return err
			}
			partials[c] = set
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := partials[0]
	for _, p := range partials[1:] {
		merged, err = aggregate.CombineSets(merged, p)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func fold(ctx context.Context, centroids, points []point.Point, dim int, labels []int, offset int) (aggregate.Set, error) {
	set := aggregate.NewSet(len(centroids), dim)

	for i, p := range points {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		nearest, err := point.Nearest(p, centroids)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", offset+i, err)
		}
		if err := set[nearest].Add(p); err != nil {
			return nil, fmt.Errorf("point %d: %w", offset+i, err)
		}
		if labels != nil {
			labels[offset+i] = nearest
		}
	}
	return set, nil
}

// chunk returns the half-open range of chunk c when n items are split into
// parts contiguous chunks; the first n%parts chunks get one extra item.
func chunk(n, parts, c int) (int, int) {
	size, extra := n/parts, n%parts
	lo := c*size + min(c, extra)
	hi := lo + size
	if c < extra {
		hi++
	}
	return lo, hi
}
