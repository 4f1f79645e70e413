package dataset

import (
	"fmt"

	"github.com/hupe1980/dkmeans/point"
)

// Partition splits n items into parts contiguous runs. Every run gets n/parts
// items and the first n%parts runs get one more. It returns the run sizes and
// their start offsets, or nil slices when parts < 1.
func Partition(n, parts int) (sizes, displacements []int) {
	if parts < 1 || n < 0 {
		return nil, nil
	}

	sizes = make([]int, parts)
	displacements = make([]int, parts)

	base, extra := n/parts, n%parts
	offset := 0
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
		displacements[i] = offset
		offset += sizes[i]
	}
	return sizes, displacements
}

// Split partitions points into parts contiguous shards with Partition.
// Shards alias points.
func Split(points []point.Point, parts int) ([][]point.Point, error) {
	sizes, displs := Partition(len(points), parts)
	if sizes == nil {
		return nil, fmt.Errorf("%w: cannot split into %d parts", ErrInvalidConfig, parts)
	}

	shards := make([][]point.Point, parts)
	for i := range shards {
		shards[i] = points[displs[i] : displs[i]+sizes[i] : displs[i]+sizes[i]]
	}
	return shards, nil
}
