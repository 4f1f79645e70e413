// Package aggregate implements the partial (sum, count) contribution of a
// subset of points toward one centroid, and the index-aligned set of such
// contributions exchanged between workers.
//
// Combining is element-wise vector addition plus count addition. It is
// associative and commutative, so partial results may be reduced in any order
// across any number of workers. Division happens exactly once, after all
// partial sums and counts are combined.
package aggregate

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/dkmeans/point"
)

var (
	// ErrZeroCount is returned by ToCentroid for an aggregate with no points.
	// Callers must special-case empty clusters rather than divide.
	ErrZeroCount = errors.New("aggregate has zero count")

	// ErrCardinalityMismatch is returned when two aggregate sets that must be
	// index-aligned have different lengths.
	ErrCardinalityMismatch = errors.New("aggregate set cardinality mismatch")
)

// LocalAggregate is the partial contribution of some point subset to one
// centroid. Sum always has the run's dimensionality; a zero Count implies a
// zero Sum.
type LocalAggregate struct {
	Sum   point.Point
	Count uint64
}

// New returns a zeroed aggregate of the given dimensionality.
func New(dim int) LocalAggregate {
	return LocalAggregate{Sum: make(point.Point, dim)}
}

// FromPoints sums all points coordinate-wise; Count is len(points).
//
// Fails with point.ErrEmptyInput, point.ErrZeroDimension or
// *point.ErrDimensionMismatch under the same rules as point.Flatten.
func FromPoints(points []point.Point) (LocalAggregate, error) {
	dim, err := point.CommonDim(points)
	if err != nil {
		return LocalAggregate{}, err
	}

	agg := New(dim)
	for _, p := range points {
		floats.Add(agg.Sum, p)
	}
	agg.Count = uint64(len(points))
	return agg, nil
}

// Dim returns the dimensionality of the aggregate.
func (a LocalAggregate) Dim() int { return len(a.Sum) }

// Add folds p into the aggregate in place.
//
// Not safe for concurrent use; concurrent folds must use private aggregates
// merged with Combine afterwards.
func (a *LocalAggregate) Add(p point.Point) error {
	if len(p) != len(a.Sum) {
		return &point.ErrDimensionMismatch{Expected: len(a.Sum), Actual: len(p)}
	}
	floats.Add(a.Sum, p)
	a.Count++
	return nil
}

// Combine returns the element-wise sum of a and b. Neither input is modified.
func Combine(a, b LocalAggregate) (LocalAggregate, error) {
	if len(a.Sum) != len(b.Sum) {
		return LocalAggregate{}, &point.ErrDimensionMismatch{Expected: len(a.Sum), Actual: len(b.Sum)}
	}

	sum := make(point.Point, len(a.Sum))
	floats.AddTo(sum, a.Sum, b.Sum)

	return LocalAggregate{Sum: sum, Count: a.Count + b.Count}, nil
}

// ToCentroid divides the sum by the count. Returns ErrZeroCount when Count is 0.
func (a LocalAggregate) ToCentroid() (point.Point, error) {
	if a.Count == 0 {
		return nil, ErrZeroCount
	}

	c := a.Sum.Clone()
	floats.Scale(1/float64(a.Count), c)
	return c, nil
}

// Clone returns a deep copy of a.
func (a LocalAggregate) Clone() LocalAggregate {
	return LocalAggregate{Sum: a.Sum.Clone(), Count: a.Count}
}

// Equal reports whether a and b have identical sums and counts.
func (a LocalAggregate) Equal(b LocalAggregate) bool {
	return a.Count == b.Count && a.Sum.Equal(b.Sum)
}

func (a LocalAggregate) String() string {
	return fmt.Sprintf("{sum=%s count=%d}", a.Sum, a.Count)
}
