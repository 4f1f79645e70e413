package dkmeans

import (
	"errors"
	"fmt"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/internal/assign"
	"github.com/hupe1980/dkmeans/point"
)

var (
	// ErrTooManyCentroids is returned when more centroids are requested than
	// there are points to draw them from.
	ErrTooManyCentroids = errors.New("more centroids requested than points available")

	// ErrEmptyCentroidSet is returned when assignment runs without centroids.
	// It counts as a configuration error.
	ErrEmptyCentroidSet = assign.ErrEmptyCentroidSet

	// ErrAlreadyRun is returned when Run is called a second time.
	ErrAlreadyRun = errors.New("solver has already run")

	// ErrNilTransport is returned when a solver is built without a transport.
	ErrNilTransport = errors.New("transport is nil")

	// ErrEmptyInput is returned when an operation requires at least one point.
	ErrEmptyInput = point.ErrEmptyInput

	// ErrZeroDimension is returned when the dimensionality of a batch is zero.
	ErrZeroDimension = point.ErrZeroDimension

	// ErrNotFound is returned by nearest-centroid lookups without candidates.
	ErrNotFound = point.ErrNotFound

	// ErrZeroCount is returned when dividing an aggregate without points.
	ErrZeroCount = aggregate.ErrZeroCount
)

// ErrDimensionMismatch indicates points of different dimensionality.
type ErrDimensionMismatch = point.ErrDimensionMismatch

// ErrSizeMismatch indicates a flattened buffer that does not match its shape.
type ErrSizeMismatch = point.ErrSizeMismatch

// ErrConfiguration indicates an invalid run configuration. It is fatal and
// reported before any iteration starts.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrConfiguration struct {
	Field  string
	Reason string
	cause  error
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ErrConfiguration) Unwrap() error { return e.cause }

func configError(field, reason string, cause error) error {
	return &ErrConfiguration{Field: field, Reason: reason, cause: cause}
}

// IsConfigurationError reports whether err is, or wraps, an *ErrConfiguration
// or ErrEmptyCentroidSet.
func IsConfigurationError(err error) bool {
	var ce *ErrConfiguration
	return errors.As(err, &ce) || errors.Is(err, ErrEmptyCentroidSet)
}
