package point

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when an operation requires at least one point.
	ErrEmptyInput = errors.New("no points provided")

	// ErrZeroDimension is returned when the common dimensionality of a batch is zero.
	ErrZeroDimension = errors.New("dimensionality cannot be zero")

	// ErrNotFound is returned by Nearest when there are no candidates to choose from.
	ErrNotFound = errors.New("no candidate found")

	// ErrCardinalityMismatch is returned when two point sets that must be
	// index-aligned have different lengths.
	ErrCardinalityMismatch = errors.New("point set cardinality mismatch")
)

// ErrDimensionMismatch indicates that two points (or a point and an aggregate)
// of different dimensionality were compared or combined.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrSizeMismatch indicates a flattened buffer whose length does not match
// its declared shape.
type ErrSizeMismatch struct {
	Points   uint64
	Dims     uint64
	Expected uint64
	Actual   uint64
}

func (e *ErrSizeMismatch) Error() string {
	return fmt.Sprintf("flattened points size mismatch: expected %d (%d points * %d dims), got %d",
		e.Expected, e.Points, e.Dims, e.Actual)
}
