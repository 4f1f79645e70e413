package point

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceTo(t *testing.T) {
	a := Point{0, 0}
	b := Point{3, 4}

	d, err := a.DistanceTo(b)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-12)
}

func TestDistanceTo_SymmetricNonNegative(t *testing.T) {
	pairs := [][2]Point{
		{{1, 2, 3}, {4, 5, 6}},
		{{-1.5, 0}, {2.25, -7}},
		{{0}, {0}},
		{{1e9, -1e9}, {-1e9, 1e9}},
	}

	for _, pair := range pairs {
		ab, err := pair[0].DistanceTo(pair[1])
		require.NoError(t, err)
		ba, err := pair[1].DistanceTo(pair[0])
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, 0.0)

		self, err := pair[0].DistanceTo(pair[0])
		require.NoError(t, err)
		assert.Equal(t, 0.0, self)
	}
}

func TestDistanceTo_DimensionMismatch(t *testing.T) {
	_, err := Point{1, 2}.DistanceTo(Point{1, 2, 3})

	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestNearest(t *testing.T) {
	centroids := []Point{
		{0, 0},
		{10, 10},
		{20, 20},
	}

	idx, err := Nearest(Point{1, 1}, centroids)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = Nearest(Point{19, 19}, centroids)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestNearest_TieGoesToLowestIndex(t *testing.T) {
	// (5,5) is equidistant from all three candidates below.
	centroids := []Point{
		{0, 5},
		{10, 5},
		{5, 0},
	}

	idx, err := Nearest(Point{5, 5}, centroids)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	// Duplicate candidates: the first occurrence wins.
	idx, err = Nearest(Point{3, 3}, []Point{{9, 9}, {3, 4}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestNearest_Empty(t *testing.T) {
	_, err := Nearest(Point{1, 1}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNearest_DimensionMismatch(t *testing.T) {
	_, err := Nearest(Point{1, 1}, []Point{{1, 1, 1}})
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestNearest_AllNaN(t *testing.T) {
	_, err := Nearest(Point{math.NaN()}, []Point{{1}, {2}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloneAndEqual(t *testing.T) {
	p := Point{1, 2, 3}
	c := p.Clone()
	require.True(t, p.Equal(c))

	c[0] = 42
	assert.Equal(t, 1.0, p[0])
	assert.False(t, p.Equal(c))
	assert.False(t, p.Equal(Point{1, 2}))
	assert.Nil(t, Point(nil).Clone())
}

func TestMaxDisplacement(t *testing.T) {
	prev := []Point{{0, 0}, {10, 10}}
	cur := []Point{{0, 1}, {13, 14}}

	d, err := MaxDisplacement(prev, cur)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-12)

	_, err = MaxDisplacement(prev, cur[:1])
	assert.ErrorIs(t, err, ErrCardinalityMismatch)
}

func TestString(t *testing.T) {
	assert.Equal(t, "(1, -2.5)", Point{1, -2.5}.String())
	assert.Equal(t, "()", Point{}.String())
}
