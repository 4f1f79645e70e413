// Package point provides the fixed-length coordinate vector used throughout
// dkmeans, together with the flatten/unflatten contract that moves batches of
// points across process boundaries as one contiguous buffer.
//
// # Points
//
// A Point is an ordered []float64. Every Point compared or combined within one
// run must have the same dimensionality; a mismatch is reported as
// *ErrDimensionMismatch and is never padded or truncated.
//
//	d, err := a.DistanceTo(b)            // Euclidean distance
//	idx, err := point.Nearest(p, centroids) // lowest index wins on ties
//
// # Wire Shape
//
// FlattenedPoints is the canonical wire shape for point batches:
//
//	FlattenedPoints{DimensionsPerPoint: D, PointCount: N, Data: [D*N]float64}
//
// Data is row-major by point. Unflatten rejects buffers whose length is not
// exactly D*N with *ErrSizeMismatch.
package point
