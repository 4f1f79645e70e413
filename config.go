package dkmeans

import (
	"math"
	"strconv"
)

const (
	// DefaultMaxIterations bounds a run when no other limit is configured.
	DefaultMaxIterations = 1000
	// DefaultConvergenceThreshold is the displacement below which a run has converged.
	DefaultConvergenceThreshold = 1e-4
	// DefaultK is the default number of centroids.
	DefaultK = 2
	// DefaultSeed seeds the initial centroid selection.
	DefaultSeed int64 = 1234
)

// Config holds the parameters every worker of a run must agree on.
type Config struct {
	// K is the number of centroids.
	K int

	// MaxIterations is the iteration budget. Must be at least 1.
	MaxIterations int

	// ConvergenceThreshold is compared against the largest per-centroid
	// displacement of an iteration. Must be positive and finite.
	ConvergenceThreshold float64

	// Seed drives initial centroid selection on the root worker.
	Seed int64

	// Dimensionality is the expected dimensionality of every point.
	// If 0, it is taken from the shard or the broadcast centroids.
	Dimensionality int
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		K:                    DefaultK,
		MaxIterations:        DefaultMaxIterations,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		Seed:                 DefaultSeed,
	}
}

// Validate checks the configuration and returns an *ErrConfiguration on the
// first invalid field.
func (c Config) Validate() error {
	if c.K < 1 {
		return configError("K", "must be at least 1, got "+strconv.Itoa(c.K), nil)
	}
	if c.MaxIterations < 1 {
		return configError("MaxIterations", "must be at least 1, got "+strconv.Itoa(c.MaxIterations), nil)
	}
	if !(c.ConvergenceThreshold > 0) || math.IsInf(c.ConvergenceThreshold, 0) {
		return configError("ConvergenceThreshold", "must be positive and finite, got "+strconv.FormatFloat(c.ConvergenceThreshold, 'g', -1, 64), nil)
	}
	if c.Dimensionality < 0 {
		return configError("Dimensionality", "must not be negative, got "+strconv.Itoa(c.Dimensionality), ErrZeroDimension)
	}
	return nil
}
