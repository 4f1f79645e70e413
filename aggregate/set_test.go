package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dkmeans/point"
)

func TestNewSet(t *testing.T) {
	s := NewSet(3, 2)
	require.Len(t, s, 3)
	for _, a := range s {
		assert.Equal(t, point.Point{0, 0}, a.Sum)
		assert.Zero(t, a.Count)
	}

	// Each aggregate owns its own sum.
	require.NoError(t, s[0].Add(point.Point{1, 1}))
	assert.Equal(t, point.Point{0, 0}, s[1].Sum)
}

func TestCombineSets(t *testing.T) {
	a := Set{
		{Sum: point.Point{1, 1}, Count: 1},
		{Sum: point.Point{0, 0}, Count: 0},
	}
	b := Set{
		{Sum: point.Point{2, 2}, Count: 2},
		{Sum: point.Point{5, 5}, Count: 1},
	}

	c, err := CombineSets(a, b)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 1}, c.Counts())
	assert.Equal(t, point.Point{3, 3}, c[0].Sum)
	assert.Equal(t, point.Point{5, 5}, c[1].Sum)
	assert.Equal(t, uint64(4), c.Total())

	_, err = CombineSets(a, b[:1])
	assert.ErrorIs(t, err, ErrCardinalityMismatch)
}

func TestCombineAll(t *testing.T) {
	sets := []Set{
		{{Sum: point.Point{1}, Count: 1}},
		{{Sum: point.Point{2}, Count: 1}},
		{{Sum: point.Point{3}, Count: 1}},
	}

	c, err := CombineAll(sets)
	require.NoError(t, err)
	assert.Equal(t, point.Point{6}, c[0].Sum)
	assert.Equal(t, uint64(3), c[0].Count)

	// Inputs are not modified.
	assert.Equal(t, point.Point{1}, sets[0][0].Sum)

	_, err = CombineAll(nil)
	assert.ErrorIs(t, err, point.ErrEmptyInput)
}

func TestSetWireRoundTrip(t *testing.T) {
	s := Set{
		{Sum: point.Point{1, 2, 3}, Count: 4},
		{Sum: point.Point{0, 0, 0}, Count: 0},
	}

	fp, counts, err := s.Flatten()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fp.DimensionsPerPoint)
	assert.Equal(t, uint64(2), fp.PointCount)

	got, err := SetFromWire(fp, counts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range s {
		assert.True(t, s[i].Equal(got[i]))
	}

	_, err = SetFromWire(fp, counts[:1])
	assert.ErrorIs(t, err, ErrCardinalityMismatch)
}
