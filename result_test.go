package dkmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dkmeans/blobstore"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/point"
)

func TestSaveAndLoadResult(t *testing.T) {
	ctx := context.Background()

	for _, c := range []codec.Compression{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			res := &Result{
				Centroids:  []point.Point{{1.5, -2}, {0.1, 1e-300}},
				Reason:     MaxIterationsReached,
				Iterations: 17,
				Movement:   0.25,
				Counts:     []uint64{10, 0},
				Labels:     []int{0, 0, 1},
			}

			require.NoError(t, SaveResult(ctx, store, "runs/1", res, c))

			got, err := LoadLatestResult(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, res.Centroids, got.Centroids)
			assert.Equal(t, res.Reason, got.Reason)
			assert.Equal(t, res.Iterations, got.Iterations)
			assert.Equal(t, res.Movement, got.Movement)
			assert.Equal(t, res.Counts, got.Counts)
			assert.Nil(t, got.Labels)
		})
	}
}

func TestSaveResult_LatestWins(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	first := &Result{Centroids: []point.Point{{1}}, Reason: Converged, Iterations: 1}
	second := &Result{Centroids: []point.Point{{2}}, Reason: Converged, Iterations: 2}

	require.NoError(t, SaveResult(ctx, store, "runs/a", first, codec.CompressionNone))
	require.NoError(t, SaveResult(ctx, store, "runs/b", second, codec.CompressionNone))

	got, err := LoadLatestResult(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Iterations)

	old, err := LoadResult(ctx, store, "runs/a")
	require.NoError(t, err)
	assert.Equal(t, []point.Point{{1}}, old.Centroids)
}

func TestLoadResult_Errors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	_, err := LoadLatestResult(ctx, store)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "bad/manifest.json", []byte(`{"version":1,"codec":"xml"}`)))
	_, err = LoadResult(ctx, store, "bad")
	assert.ErrorIs(t, err, ErrInvalidResult)

	require.NoError(t, store.Put(ctx, "old/manifest.json", []byte(`{"version":9,"codec":"json"}`)))
	_, err = LoadResult(ctx, store, "old")
	assert.ErrorIs(t, err, ErrInvalidResult)

	require.NoError(t, store.Put(ctx, blobstore.CurrentName, []byte("  ")))
	_, err = LoadLatestResult(ctx, store)
	assert.ErrorIs(t, err, ErrInvalidResult)

	err = SaveResult(ctx, store, "x", &Result{}, codec.CompressionNone)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestMatchCentroids(t *testing.T) {
	found := []point.Point{{10, 10}, {0, 0}}
	known := []point.Point{{0, 1}, {9, 10}}

	matches, err := MatchCentroids(found, known)
	require.NoError(t, err)
	assert.Equal(t, []Match{
		{Known: 0, Found: 1, Distance: 1},
		{Known: 1, Found: 0, Distance: 1},
	}, matches)

	_, err = MatchCentroids(nil, known)
	assert.ErrorIs(t, err, ErrNotFound)
}
