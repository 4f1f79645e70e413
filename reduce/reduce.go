// Package reduce implements the global reduction step: combine every
// worker's per-centroid aggregates, then turn each combined aggregate into the
// next centroid generation.
//
// Division happens once, on the combined sum and count. Averaging per-worker
// means is never done.
package reduce

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/transport"
)

// EmptyClusterPolicy decides the next centroid for an index whose combined
// count is zero.
type EmptyClusterPolicy interface {
	Empty(index int, previous point.Point) (point.Point, error)
}

// Freeze keeps an empty cluster's centroid where it was.
type Freeze struct{}

// Empty returns a copy of previous.
func (Freeze) Empty(_ int, previous point.Point) (point.Point, error) {
	return previous.Clone(), nil
}

// Outcome is the result of one reduction.
type Outcome struct {
	// Centroids is the new generation, one per index.
	Centroids []point.Point
	// Combined holds the combined aggregates the centroids were derived from.
	Combined aggregate.Set
	// Empty lists the indices that had no points anywhere, ascending.
	Empty *roaring.Bitmap
}

// EmptyCount returns the number of empty clusters.
func (o Outcome) EmptyCount() int {
	if o.Empty == nil {
		return 0
	}
	return int(o.Empty.GetCardinality())
}

// Step runs the collective reduction over t and finalizes the result.
// Every rank receives the same Outcome.
func Step(ctx context.Context, t transport.Transport, previous []point.Point, local aggregate.Set, policy EmptyClusterPolicy) (Outcome, error) {
	if len(local) != len(previous) {
		return Outcome{}, fmt.Errorf("%w: %d aggregates for %d centroids", aggregate.ErrCardinalityMismatch, len(local), len(previous))
	}

	combined, err := t.ReduceAggregates(ctx, local)
	if err != nil {
		return Outcome{}, fmt.Errorf("reduce aggregates: %w", err)
	}
	return Finalize(previous, combined, policy)
}

// Finalize derives the next generation from combined aggregates. A nil
// policy means Freeze.
func Finalize(previous []point.Point, combined aggregate.Set, policy EmptyClusterPolicy) (Outcome, error) {
	if len(combined) != len(previous) {
		return Outcome{}, fmt.Errorf("%w: %d aggregates for %d centroids", aggregate.ErrCardinalityMismatch, len(combined), len(previous))
	}
	if policy == nil {
		policy = Freeze{}
	}

	out := Outcome{
		Centroids: make([]point.Point, len(combined)),
		Combined:  combined,
		Empty:     roaring.New(),
	}

	for i, agg := range combined {
		if agg.Count == 0 {
			c, err := policy.Empty(i, previous[i])
			if err != nil {
				return Outcome{}, fmt.Errorf("empty cluster %d: %w", i, err)
			}
			out.Centroids[i] = c
			out.Empty.Add(uint32(i))
			continue
		}

		if agg.Dim() != previous[i].Dim() {
			return Outcome{}, &point.ErrDimensionMismatch{Expected: previous[i].Dim(), Actual: agg.Dim()}
		}

		c, err := agg.ToCentroid()
		if err != nil {
			return Outcome{}, fmt.Errorf("centroid %d: %w", i, err)
		}
		out.Centroids[i] = c
	}

	return out, nil
}
