package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/dkmeans/point"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// UniformPoints generates random points with coordinates in [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformPoints(num, dimensions int) []point.Point {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float64, num*dimensions)
	points := make([]point.Point, num)

	for i := range num {
		p := data[i*dimensions : (i+1)*dimensions : (i+1)*dimensions]
		for j := range p {
			p[j] = r.rand.Float64()
		}
		points[i] = p
	}

	return points
}

// IntegerPoints generates points with integer coordinates in [-limit, limit].
// Sums of such points are exact in float64, which makes them suitable for
// equality assertions on aggregates.
func (r *RNG) IntegerPoints(num, dimensions, limit int) []point.Point {
	r.mu.Lock()
	defer r.mu.Unlock()

	points := make([]point.Point, num)
	for i := range num {
		p := make(point.Point, dimensions)
		for j := range p {
			p[j] = float64(r.rand.Intn(2*limit+1) - limit)
		}
		points[i] = p
	}

	return points
}

// Blobs generates num points around clusters well-separated centers with
// Gaussian noise of the given spread. Centers lie on a grid with spacing 100
// so that clusters never overlap for small spreads.
// Points are emitted cluster by cluster.
func (r *RNG) Blobs(num, dim, clusters int, spread float64) ([]point.Point, []point.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	centers := make([]point.Point, clusters)
	for c := range clusters {
		center := make(point.Point, dim)
		for j := range center {
			center[j] = float64(c*100) + float64(j)
		}
		centers[c] = center
	}

	points := make([]point.Point, 0, num)
	for c := range clusters {
		n := num / clusters
		if c < num%clusters {
			n++
		}
		for range n {
			p := make(point.Point, dim)
			for j := range p {
				p[j] = centers[c][j] + r.rand.NormFloat64()*spread
			}
			points = append(points, p)
		}
	}

	return points, centers
}

// RandomPartition assigns each index in [0, n) to one of parts disjoint,
// non-empty shards (parts must be <= n). The order inside a shard is ascending.
func RandomPartition(r *RNG, n, parts int) [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	perm := r.rand.Perm(n)
	owner := make([]int, n)
	// The first parts entries of the permutation seed every shard.
	for i, idx := range perm {
		if i < parts {
			owner[idx] = i
		} else {
			owner[idx] = r.rand.Intn(parts)
		}
	}

	shards := make([][]int, parts)
	for idx := range n {
		shards[owner[idx]] = append(shards[owner[idx]], idx)
	}

	return shards
}
