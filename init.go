package dkmeans

import (
	"fmt"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/dkmeans/point"
)

// SelectInitialCentroids draws k distinct points from dataset.
//
// Indices are drawn uniformly from a source seeded with seed; a drawn index
// that was already taken is rejected and drawn again. The returned centroids
// are copies in draw order, so the same dataset and seed always yield the same
// centroids. Fails with ErrTooManyCentroids, wrapped in an *ErrConfiguration,
// when k exceeds the number of points.
func SelectInitialCentroids(dataset []point.Point, k int, seed int64) ([]point.Point, error) {
	if k < 1 {
		return nil, configError("K", fmt.Sprintf("must be at least 1, got %d", k), nil)
	}
	if k > len(dataset) {
		return nil, configError("K", fmt.Sprintf("%d centroids requested from %d points", k, len(dataset)), ErrTooManyCentroids)
	}
	if _, err := point.CommonDim(dataset); err != nil {
		return nil, fmt.Errorf("initial centroids: %w", err)
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducibility, not security
	taken := roaring.New()
	centroids := make([]point.Point, 0, k)

	for len(centroids) < k {
		i := rng.Intn(len(dataset))
		if !taken.CheckedAdd(uint32(i)) {
			continue
		}
		centroids = append(centroids, dataset[i].Clone())
	}
	return centroids, nil
}
