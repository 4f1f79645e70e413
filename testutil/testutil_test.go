package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformPoints(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformPoints(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.Less(t, v[0][0], 1.0)
	assert.GreaterOrEqual(t, v[1][0], 0.0)
}

func TestIntegerPoints(t *testing.T) {
	rng := NewRNG(4711)

	for _, p := range rng.IntegerPoints(50, 3, 5) {
		for _, c := range p {
			assert.Equal(t, float64(int(c)), c)
			assert.LessOrEqual(t, c, 5.0)
			assert.GreaterOrEqual(t, c, -5.0)
		}
	}
}

func TestBlobs(t *testing.T) {
	rng := NewRNG(4711)

	points, centers := rng.Blobs(10, 2, 3, 0.1)

	assert.Len(t, points, 10)
	assert.Len(t, centers, 3)
	// The remainder goes to the first cluster: 4, 3, 3.
	assert.InDelta(t, centers[0][0], points[3][0], 1.0)
	assert.InDelta(t, centers[1][0], points[4][0], 1.0)
}

func TestRandomPartition(t *testing.T) {
	rng := NewRNG(4711)

	shards := RandomPartition(rng, 100, 7)
	require.Len(t, shards, 7)

	seen := make(map[int]bool)
	for _, s := range shards {
		assert.NotEmpty(t, s)
		for _, idx := range s {
			assert.False(t, seen[idx])
			seen[idx] = true
		}
	}
	assert.Len(t, seen, 100)
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformPoints(1, 10)
	rng.Reset()
	v2 := rng.UniformPoints(1, 10)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(4711), rng.Seed())
}
