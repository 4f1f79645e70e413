package aggregate

import (
	"fmt"

	"github.com/hupe1980/dkmeans/point"
)

// Set holds one LocalAggregate per centroid index. Index identity is the join
// key between local assignment and global reduction.
type Set []LocalAggregate

// NewSet returns k zeroed aggregates of dimensionality dim.
func NewSet(k, dim int) Set {
	s := make(Set, k)
	for i := range s {
		s[i] = New(dim)
	}
	return s
}

// CombineSets combines a and b index by index.
func CombineSets(a, b Set) (Set, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrCardinalityMismatch, len(a), len(b))
	}

	out := make(Set, len(a))
	for i := range a {
		c, err := Combine(a[i], b[i])
		if err != nil {
			return nil, fmt.Errorf("centroid %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// CombineAll folds every set in order. It fails with point.ErrEmptyInput when
// sets is empty.
func CombineAll(sets []Set) (Set, error) {
	if len(sets) == 0 {
		return nil, point.ErrEmptyInput
	}

	acc := sets[0].Clone()
	for _, s := range sets[1:] {
		next, err := CombineSets(acc, s)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// Counts returns the count of every aggregate, by index.
func (s Set) Counts() []uint64 {
	counts := make([]uint64, len(s))
	for i, a := range s {
		counts[i] = a.Count
	}
	return counts
}

// Total returns the sum of all counts.
func (s Set) Total() uint64 {
	var n uint64
	for _, a := range s {
		n += a.Count
	}
	return n
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for i, a := range s {
		out[i] = a.Clone()
	}
	return out
}

// Flatten splits the set into its sums, in wire shape, and its counts.
func (s Set) Flatten() (point.FlattenedPoints, []uint64, error) {
	sums := make([]point.Point, len(s))
	for i, a := range s {
		sums[i] = a.Sum
	}

	fp, err := point.Flatten(sums)
	if err != nil {
		return point.FlattenedPoints{}, nil, err
	}
	return fp, s.Counts(), nil
}

// SetFromWire rebuilds a Set from flattened sums and their counts.
func SetFromWire(sums point.FlattenedPoints, counts []uint64) (Set, error) {
	if uint64(len(counts)) != sums.PointCount {
		return nil, fmt.Errorf("%w: %d sums vs %d counts", ErrCardinalityMismatch, sums.PointCount, len(counts))
	}

	points, err := point.Unflatten(sums)
	if err != nil {
		return nil, err
	}

	out := make(Set, len(points))
	for i, p := range points {
		out[i] = LocalAggregate{Sum: p, Count: counts[i]}
	}
	return out, nil
}
