// Package dataset generates synthetic clustered point sets and partitions
// them across workers.
//
// Points are drawn as Gaussian blobs around uniformly placed true centers, so
// a correct clustering of a generated set is known in advance.
package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hupe1980/dkmeans/point"
)

// ErrInvalidConfig is returned for a generator configuration that cannot
// produce a dataset.
var ErrInvalidConfig = errors.New("invalid dataset config")

// Range is the closed-open interval a true center coordinate is drawn from.
type Range struct {
	Low  float64
	High float64
}

// Config describes a synthetic dataset.
type Config struct {
	// NumSamples is the total number of points.
	NumSamples int
	// Dimensions is the dimensionality of every point.
	Dimensions int
	// NumTrueClusters is the number of blobs.
	NumTrueClusters int
	// Spread is the standard deviation of the Gaussian noise around a center.
	Spread float64
	// Seed makes generation reproducible.
	Seed uint64
	// Ranges holds one Range per dimension for the true centers. If empty,
	// every dimension uses DefaultRange.
	Ranges []Range
}

// DefaultRange is used for dimensions without an explicit range.
var DefaultRange = Range{Low: 0, High: 100}

// DefaultConfig returns a small three-dimensional dataset with two blobs.
func DefaultConfig() Config {
	return Config{
		NumSamples:      10,
		Dimensions:      3,
		NumTrueClusters: 2,
		Spread:          3.5,
		Seed:            1,
		Ranges:          []Range{{0, 10}, {10, 20}, {20, 30}},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.NumSamples < 1:
		return fmt.Errorf("%w: NumSamples must be at least 1, got %d", ErrInvalidConfig, c.NumSamples)
	case c.Dimensions < 1:
		return fmt.Errorf("%w: Dimensions must be at least 1, got %d: %w", ErrInvalidConfig, c.Dimensions, point.ErrZeroDimension)
	case c.NumTrueClusters < 1:
		return fmt.Errorf("%w: NumTrueClusters must be at least 1, got %d", ErrInvalidConfig, c.NumTrueClusters)
	case !(c.Spread >= 0):
		return fmt.Errorf("%w: Spread must not be negative, got %g", ErrInvalidConfig, c.Spread)
	case len(c.Ranges) != 0 && len(c.Ranges) != c.Dimensions:
		return fmt.Errorf("%w: %d ranges for %d dimensions", ErrInvalidConfig, len(c.Ranges), c.Dimensions)
	}
	for i, r := range c.Ranges {
		if !(r.Low < r.High) {
			return fmt.Errorf("%w: range %d is empty [%g, %g)", ErrInvalidConfig, i, r.Low, r.High)
		}
	}
	return nil
}

func (c Config) rangeOf(dim int) Range {
	if len(c.Ranges) == 0 {
		return DefaultRange
	}
	return c.Ranges[dim]
}

// DataSet is a generated point set together with the centers it was drawn
// around.
type DataSet struct {
	// Points holds the samples, grouped by blob in center order.
	Points []point.Point
	// KnownGoodCentroids holds the true centers. They are for comparison
	// only and never feed back into a run.
	KnownGoodCentroids []point.Point
}

// Generate draws a dataset. The same Config always yields the same points.
func Generate(cfg Config) (*DataSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)

	centers := make([]point.Point, cfg.NumTrueClusters)
	for k := range centers {
		c := make(point.Point, cfg.Dimensions)
		for d := range c {
			r := cfg.rangeOf(d)
			c[d] = distuv.Uniform{Min: r.Low, Max: r.High, Src: src}.Rand()
		}
		centers[k] = c
	}

	sizes, _ := Partition(cfg.NumSamples, cfg.NumTrueClusters)

	data := make([]float64, cfg.NumSamples*cfg.Dimensions)
	points := make([]point.Point, 0, cfg.NumSamples)

	for k, center := range centers {
		noise := make([]distuv.Normal, cfg.Dimensions)
		for d := range noise {
			noise[d] = distuv.Normal{Mu: center[d], Sigma: cfg.Spread, Src: src}
		}

		for range sizes[k] {
			i := len(points)
			p := point.Point(data[i*cfg.Dimensions : (i+1)*cfg.Dimensions : (i+1)*cfg.Dimensions])
			for d := range p {
				p[d] = sample(noise[d])
			}
			points = append(points, p)
		}
	}

	return &DataSet{Points: points, KnownGoodCentroids: centers}, nil
}

// sample draws from n; a zero spread puts every point on its center.
func sample(n distuv.Normal) float64 {
	if n.Sigma == 0 {
		return n.Mu
	}
	return n.Rand()
}

// Len returns the number of points.
func (d *DataSet) Len() int { return len(d.Points) }

// Shard returns the contiguous slice of points owned by rank in a group of
// size workers. Shards alias the dataset.
func (d *DataSet) Shard(rank, size int) ([]point.Point, error) {
	sizes, displs := Partition(len(d.Points), size)
	if sizes == nil {
		return nil, fmt.Errorf("%w: group size %d", ErrInvalidConfig, size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d out of range for group of size %d", ErrInvalidConfig, rank, size)
	}
	return d.Points[displs[rank] : displs[rank]+sizes[rank]], nil
}
