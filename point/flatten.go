package point

import (
	"fmt"
	"math"
	"math/bits"
)

// FlattenedPoints is a batch of points laid out as one contiguous, row-major
// buffer. len(Data) must equal DimensionsPerPoint*PointCount.
type FlattenedPoints struct {
	DimensionsPerPoint uint64
	PointCount         uint64
	Data               []float64
}

// Validate checks that the buffer length matches the declared shape.
//
// A shape whose element count overflows uint64 is a size mismatch with
// Expected set to math.MaxUint64. Points without coordinates fail with
// ErrZeroDimension.
func (f FlattenedPoints) Validate() error {
	if f.DimensionsPerPoint == 0 && f.PointCount > 0 {
		return fmt.Errorf("%d points: %w", f.PointCount, ErrZeroDimension)
	}

	hi, expected := bits.Mul64(f.DimensionsPerPoint, f.PointCount)
	if hi != 0 {
		expected = math.MaxUint64
	}
	if hi != 0 || uint64(len(f.Data)) != expected {
		return &ErrSizeMismatch{
			Points:   f.PointCount,
			Dims:     f.DimensionsPerPoint,
			Expected: expected,
			Actual:   uint64(len(f.Data)),
		}
	}
	return nil
}

// Flatten packs points into a single contiguous buffer.
//
// It fails with ErrEmptyInput when points is empty, ErrZeroDimension when the
// first point has no coordinates, and *ErrDimensionMismatch when any point's
// dimensionality differs from the first point's.
func Flatten(points []Point) (FlattenedPoints, error) {
	dim, err := CommonDim(points)
	if err != nil {
		return FlattenedPoints{}, err
	}

	data := make([]float64, 0, dim*len(points))
	for _, p := range points {
		data = append(data, p...)
	}

	return FlattenedPoints{
		DimensionsPerPoint: uint64(dim),
		PointCount:         uint64(len(points)),
		Data:               data,
	}, nil
}

// Unflatten slices a flattened buffer back into PointCount points of
// DimensionsPerPoint coordinates each, in order.
//
// The returned points share one freshly allocated backing array and never
// alias f.Data.
func Unflatten(f FlattenedPoints) ([]Point, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	dim := int(f.DimensionsPerPoint)
	n := int(f.PointCount)

	backing := make([]float64, len(f.Data))
	copy(backing, f.Data)

	points := make([]Point, n)
	for i := range n {
		points[i] = Point(backing[i*dim : (i+1)*dim : (i+1)*dim])
	}
	return points, nil
}
