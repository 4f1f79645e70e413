package assign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/instrument"
	"github.com/hupe1980/dkmeans/resource"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/testutil"
)

func TestStep(t *testing.T) {
	centroids := []point.Point{{0, 0}, {10, 10}}
	shard := []point.Point{{1, 1}, {2, 0}, {9, 9}, {11, 12}, {0, 1}}

	set, err := Step(context.Background(), centroids, shard, Options{Parallelism: 1})
	require.NoError(t, err)

	require.Len(t, set, 2)
	assert.Equal(t, point.Point{3, 2}, set[0].Sum)
	assert.Equal(t, uint64(3), set[0].Count)
	assert.Equal(t, point.Point{20, 21}, set[1].Sum)
	assert.Equal(t, uint64(2), set[1].Count)
}

func TestStep_TieGoesToLowestIndex(t *testing.T) {
	centroids := []point.Point{{-1}, {1}}
	labels := make([]int, 1)

	set, err := Step(context.Background(), centroids, []point.Point{{0}}, Options{Labels: labels})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), set[0].Count)
	assert.Zero(t, set[1].Count)
	assert.Equal(t, []int{0}, labels)
}

func TestStep_ParallelMatchesSequential(t *testing.T) {
	rng := testutil.NewRNG(5)
	shard := rng.IntegerPoints(1000, 3, 100)
	centroids := rng.IntegerPoints(6, 3, 100)

	seq, err := Step(context.Background(), centroids, shard, Options{Parallelism: 1})
	require.NoError(t, err)

	rc := resource.NewController(resource.Config{MaxWorkers: 2})
	for _, p := range []int{2, 3, 7, 64, 5000} {
		labels := make([]int, len(shard))
		par, err := Step(context.Background(), centroids, shard, Options{Parallelism: p, Controller: rc, Labels: labels})
		require.NoError(t, err)

		for i := range seq {
			assert.True(t, seq[i].Equal(par[i]), "parallelism %d, centroid %d", p, i)
		}
		assert.Equal(t, seq.Total(), uint64(len(shard)))

		for i, l := range labels {
			want, err := point.Nearest(shard[i], centroids)
			require.NoError(t, err)
			assert.Equal(t, want, l)
		}
	}
}

func TestStep_ConservesPointCount(t *testing.T) {
	rng := testutil.NewRNG(9)
	shard := rng.UniformPoints(333, 2)
	centroids := rng.UniformPoints(4, 2)

	set, err := Step(context.Background(), centroids, shard, Options{Parallelism: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(333), set.Total())
}

func TestStep_EmptyShard(t *testing.T) {
	set, err := Step(context.Background(), []point.Point{{1, 2}, {3, 4}}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, aggregate.NewSet(2, 2), set)
}

func TestStep_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Step(ctx, nil, []point.Point{{1}}, Options{})
	assert.ErrorIs(t, err, ErrEmptyCentroidSet)

	_, err = Step(ctx, []point.Point{{1}, {1, 2}}, []point.Point{{1}}, Options{})
	var dm *point.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)

	_, err = Step(ctx, []point.Point{{1, 2}}, []point.Point{{1, 2}, {1}}, Options{Parallelism: 1})
	assert.ErrorAs(t, err, &dm)

	_, err = Step(ctx, []point.Point{{1}}, []point.Point{{1}}, Options{Labels: make([]int, 2)})
	assert.ErrorIs(t, err, point.ErrCardinalityMismatch)
}

func TestStep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Step(ctx, []point.Point{{0}}, []point.Point{{1}, {2}}, Options{Parallelism: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStep_RecordsChunkSpans(t *testing.T) {
	w := instrument.NewMemoryWriter()
	rec := instrument.NewRecorder(w)

	_, err := Step(context.Background(), []point.Point{{0}}, []point.Point{{1}, {2}, {3}}, Options{Parallelism: 3, Recorder: rec})
	require.NoError(t, err)
	require.NoError(t, rec.Flush(context.Background()))

	assert.Len(t, w.Events(), 3)
}

func TestChunk(t *testing.T) {
	var got [][2]int
	for c := range 3 {
		lo, hi := chunk(10, 3, c)
		got = append(got, [2]int{lo, hi})
	}
	assert.Equal(t, [][2]int{{0, 4}, {4, 7}, {7, 10}}, got)
}
