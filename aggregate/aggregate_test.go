package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/testutil"
)

func TestFromPoints(t *testing.T) {
	agg, err := FromPoints([]point.Point{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, point.Point{9, 12}, agg.Sum)
	assert.Equal(t, uint64(3), agg.Count)
}

func TestFromPoints_Errors(t *testing.T) {
	_, err := FromPoints(nil)
	assert.ErrorIs(t, err, point.ErrEmptyInput)

	_, err = FromPoints([]point.Point{{}})
	assert.ErrorIs(t, err, point.ErrZeroDimension)

	_, err = FromPoints([]point.Point{{1, 2}, {1, 2, 3}})
	var dm *point.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestAdd(t *testing.T) {
	agg := New(2)
	require.NoError(t, agg.Add(point.Point{1, 1}))
	require.NoError(t, agg.Add(point.Point{2, 3}))
	assert.Equal(t, point.Point{3, 4}, agg.Sum)
	assert.Equal(t, uint64(2), agg.Count)

	err := agg.Add(point.Point{1})
	var dm *point.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
	assert.Equal(t, uint64(2), agg.Count)
}

func TestCombine_DoesNotMutateInputs(t *testing.T) {
	a := LocalAggregate{Sum: point.Point{1, 2}, Count: 1}
	b := LocalAggregate{Sum: point.Point{3, 4}, Count: 2}

	c, err := Combine(a, b)
	require.NoError(t, err)
	assert.Equal(t, point.Point{4, 6}, c.Sum)
	assert.Equal(t, uint64(3), c.Count)

	assert.Equal(t, point.Point{1, 2}, a.Sum)
	assert.Equal(t, point.Point{3, 4}, b.Sum)
}

func TestCombine_DimensionMismatch(t *testing.T) {
	_, err := Combine(New(2), New(3))
	var dm *point.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestCombine_AssociativeAndCommutative(t *testing.T) {
	// Integer-valued coordinates keep float addition exact.
	rng := testutil.NewRNG(7)
	for trial := 0; trial < 50; trial++ {
		a := randomAggregate(rng, 4)
		b := randomAggregate(rng, 4)
		c := randomAggregate(rng, 4)

		ab, err := Combine(a, b)
		require.NoError(t, err)
		ba, err := Combine(b, a)
		require.NoError(t, err)
		assert.True(t, ab.Equal(ba), "commutative")

		left, err := Combine(ab, c)
		require.NoError(t, err)
		bc, err := Combine(b, c)
		require.NoError(t, err)
		right, err := Combine(a, bc)
		require.NoError(t, err)
		assert.True(t, left.Equal(right), "associative")
	}
}

func TestToCentroid(t *testing.T) {
	agg := LocalAggregate{Sum: point.Point{9, 12}, Count: 3}

	c, err := agg.ToCentroid()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 4}, []float64(c), 1e-12)

	// The aggregate itself is untouched.
	assert.Equal(t, point.Point{9, 12}, agg.Sum)
}

func TestToCentroid_ZeroCount(t *testing.T) {
	_, err := New(3).ToCentroid()
	assert.ErrorIs(t, err, ErrZeroCount)
}

func TestDistributedEquivalence(t *testing.T) {
	rng := testutil.NewRNG(42)
	points := rng.IntegerPoints(200, 3, 100)

	whole, err := FromPoints(points)
	require.NoError(t, err)

	for _, parts := range []int{1, 2, 3, 7, 200} {
		shards := testutil.RandomPartition(rng, len(points), parts)

		var combined *LocalAggregate
		for _, idx := range shards {
			shard := make([]point.Point, len(idx))
			for i, j := range idx {
				shard[i] = points[j]
			}
			partial, err := FromPoints(shard)
			require.NoError(t, err)

			if combined == nil {
				combined = &partial
				continue
			}
			next, err := Combine(*combined, partial)
			require.NoError(t, err)
			combined = &next
		}

		require.NotNil(t, combined)
		assert.True(t, whole.Equal(*combined), "partition into %d shards", parts)
	}
}

func randomAggregate(rng *testutil.RNG, dim int) LocalAggregate {
	sum := make(point.Point, dim)
	for i := range sum {
		sum[i] = float64(rng.Intn(2001) - 1000)
	}
	return LocalAggregate{Sum: sum, Count: uint64(rng.Intn(1000))}
}
