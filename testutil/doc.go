// Package testutil provides testing utilities for dkmeans.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG with helpers for generating points,
// random partitions and clustered data with known centers.
//
// # Random Points
//
//	rng := testutil.NewRNG(seed)
//	pts := rng.UniformPoints(100, 3)        // uniform [0, 1)
//	pts = rng.IntegerPoints(100, 3, 50)      // integer coordinates, exact sums
//	pts, centers := rng.Blobs(300, 2, 3, 0.5)
//
// # Partitions
//
//	shards := testutil.RandomPartition(rng, n, parts) // disjoint index sets
package testutil
