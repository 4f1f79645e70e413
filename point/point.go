package point

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Point is an ordered, fixed-length vector of coordinates.
//
// Points are immutable by convention: functions in this module never modify a
// Point they did not allocate. Use Clone to materialize an owned copy.
type Point []float64

// Dim returns the dimensionality of the point.
func (p Point) Dim() int { return len(p) }

// Clone returns a deep copy of p.
func (p Point) Clone() Point {
	if p == nil {
		return nil
	}
	c := make(Point, len(p))
	copy(c, p)
	return c
}

// Equal reports whether p and q have the same dimensionality and identical coordinates.
func (p Point) Equal(q Point) bool {
	return len(p) == len(q) && floats.Equal(p, q)
}

// DistanceTo returns the Euclidean distance between p and q.
func (p Point) DistanceTo(q Point) (float64, error) {
	if len(p) != len(q) {
		return 0, &ErrDimensionMismatch{Expected: len(p), Actual: len(q)}
	}
	if len(p) == 0 {
		return 0, nil
	}
	return floats.Distance(p, q, 2), nil
}

// String formats the point as "(x0, x1, ...)".
func (p Point) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range p {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
	}
	sb.WriteByte(')')
	return sb.String()
}

// Nearest returns the index of the candidate closest to p.
//
// Candidates are scanned in order and a later candidate only replaces the
// current best when it is strictly closer, so the lowest index wins on ties.
// Returns ErrNotFound if candidates is empty.
func Nearest(p Point, candidates []Point) (int, error) {
	if len(candidates) == 0 {
		return -1, ErrNotFound
	}

	best := -1
	minDist := math.Inf(1)

	for i, c := range candidates {
		d, err := p.DistanceTo(c)
		if err != nil {
			return -1, err
		}
		if d < minDist {
			minDist = d
			best = i
		}
	}

	if best < 0 {
		// Every distance was NaN.
		return -1, ErrNotFound
	}
	return best, nil
}

// CommonDim validates that points is non-empty, that its dimensionality is
// non-zero, and that every point shares the dimensionality of the first.
func CommonDim(points []Point) (int, error) {
	if len(points) == 0 {
		return 0, ErrEmptyInput
	}

	dim := len(points[0])
	if dim == 0 {
		return 0, ErrZeroDimension
	}

	for _, p := range points[1:] {
		if len(p) != dim {
			return 0, &ErrDimensionMismatch{Expected: dim, Actual: len(p)}
		}
	}
	return dim, nil
}

// MaxDisplacement returns the largest distance between corresponding points
// of two equally sized generations.
func MaxDisplacement(previous, current []Point) (float64, error) {
	if len(previous) != len(current) {
		return 0, fmt.Errorf("%w: %d vs %d points", ErrCardinalityMismatch, len(previous), len(current))
	}

	var maxMove float64
	for i := range previous {
		d, err := previous[i].DistanceTo(current[i])
		if err != nil {
			return 0, err
		}
		if d > maxMove {
			maxMove = d
		}
	}
	return maxMove, nil
}
