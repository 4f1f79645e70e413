// Package transport defines the collective operations workers use to
// exchange per-centroid aggregates and centroid generations.
//
// Every rank of a group calls the same collectives in the same order. A
// collective returns only after all ranks contributed (fail-stop: a missing
// rank blocks the group until its context is canceled).
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/point"
)

// Root is the rank that owns the dataset and the initial centroids.
const Root = 0

var (
	// ErrClosed is returned by collectives on a closed transport or group.
	ErrClosed = errors.New("transport closed")

	// ErrDuplicateContribution is returned when a rank contributes twice to
	// the same collective round.
	ErrDuplicateContribution = errors.New("duplicate contribution to collective round")
)

// ErrRankOutOfRange indicates a rank outside [0, size).
type ErrRankOutOfRange struct {
	Rank int
	Size int
}

func (e *ErrRankOutOfRange) Error() string {
	return fmt.Sprintf("rank %d out of range for group of size %d", e.Rank, e.Size)
}

// Transport is one rank's handle on a worker group.
type Transport interface {
	// Rank returns this worker's rank in [0, Size()).
	Rank() int

	// Size returns the number of workers in the group.
	Size() int

	// ReduceAggregates combines local with every other rank's aggregate set,
	// index by index, and returns the identical combined set on every rank.
	ReduceAggregates(ctx context.Context, local aggregate.Set) (aggregate.Set, error)

	// BroadcastCentroids returns the Root rank's centroids on every rank.
	// Non-root ranks may pass nil.
	BroadcastCentroids(ctx context.Context, centroids []point.Point) ([]point.Point, error)

	// Close releases the transport.
	Close() error
}

// CheckRank validates rank against size.
func CheckRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return &ErrRankOutOfRange{Rank: rank, Size: size}
	}
	return nil
}

// CombineAggregates is the combine function for ReduceAggregates rounds.
func CombineAggregates(parts []aggregate.Set) (aggregate.Set, error) {
	return aggregate.CombineAll(parts)
}

// PickRoot is the combine function for BroadcastCentroids rounds.
func PickRoot(parts [][]point.Point) ([]point.Point, error) {
	if len(parts) == 0 || len(parts[Root]) == 0 {
		return nil, fmt.Errorf("broadcast: %w", point.ErrEmptyInput)
	}
	return parts[Root], nil
}

// ClonePoints deep-copies a generation of points.
func ClonePoints(points []point.Point) []point.Point {
	if points == nil {
		return nil
	}
	out := make([]point.Point, len(points))
	for i, p := range points {
		out[i] = p.Clone()
	}
	return out
}
