package dkmeans

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/dkmeans/blobstore"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/point"
)

// Result is the outcome of a terminated run as seen by one worker. Centroids,
// Reason, Iterations, Movement and Counts are identical on every worker.
type Result struct {
	// Rank is the worker that produced the result.
	Rank int
	// Centroids is the final centroid generation.
	Centroids []point.Point
	// Reason is the terminal state, Converged or MaxIterationsReached.
	Reason State
	// Iterations is the number of completed iterations.
	Iterations int
	// Movement is the largest centroid displacement of the last iteration.
	Movement float64
	// Counts is the number of points per cluster in the last iteration.
	Counts []uint64
	// Labels is the final cluster of every shard point, if requested.
	Labels []int
}

const (
	manifestVersion = 1
	manifestName    = "manifest.json"
	centroidsName   = "centroids.bin"
)

// ErrInvalidResult is returned when a stored result is malformed.
var ErrInvalidResult = errors.New("invalid stored result")

type manifest struct {
	Version     int       `json:"version"`
	Codec       string    `json:"codec"`
	CreatedAt   time.Time `json:"created_at"`
	Reason      string    `json:"reason"`
	Iterations  int       `json:"iterations"`
	Movement    float64   `json:"movement"`
	K           int       `json:"k"`
	Dimensions  int       `json:"dimensions"`
	Counts      []uint64  `json:"counts"`
	Centroids   string    `json:"centroids"`
	Compression string    `json:"compression"`
}

// SaveResult stores res under the prefix name and makes it the latest result.
//
// The centroids go into a binary point frame, everything else into a JSON
// manifest written after the frame. The CURRENT blob is switched to name
// last, so readers never observe a partially written result.
func SaveResult(ctx context.Context, store blobstore.BlobStore, name string, res *Result, c codec.Compression) error {
	if res == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidResult)
	}

	fp, err := point.Flatten(res.Centroids)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	frame, err := codec.MarshalPoints(fp, c)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	centroids := path.Join(name, centroidsName)
	if err := store.Put(ctx, centroids, frame); err != nil {
		return fmt.Errorf("save result: write centroids: %w", err)
	}

	m := manifest{
		Version:     manifestVersion,
		Codec:       codec.GoJSON{}.Name(),
		CreatedAt:   time.Now().UTC(),
		Reason:      res.Reason.String(),
		Iterations:  res.Iterations,
		Movement:    res.Movement,
		K:           len(res.Centroids),
		Dimensions:  int(fp.DimensionsPerPoint),
		Counts:      res.Counts,
		Centroids:   centroidsName,
		Compression: c.String(),
	}
	data, err := codec.GoJSON{}.MarshalIndent(m)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if err := store.Put(ctx, path.Join(name, manifestName), data); err != nil {
		return fmt.Errorf("save result: write manifest: %w", err)
	}

	if err := store.Put(ctx, blobstore.CurrentName, []byte(name)); err != nil {
		return fmt.Errorf("save result: publish: %w", err)
	}
	return nil
}

// LoadResult reads the result stored under the prefix name.
func LoadResult(ctx context.Context, store blobstore.BlobStore, name string) (*Result, error) {
	data, err := blobstore.ReadAll(ctx, store, path.Join(name, manifestName))
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}

	m, err := decodeManifest(data)
	if err != nil {
		return nil, err
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrInvalidResult, m.Version)
	}

	reason, err := parseState(m.Reason)
	if err != nil {
		return nil, err
	}

	frame, err := blobstore.ReadAll(ctx, store, path.Join(name, m.Centroids))
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	fp, err := codec.UnmarshalPoints(frame)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	centroids, err := point.Unflatten(fp)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	if len(centroids) != m.K || int(fp.DimensionsPerPoint) != m.Dimensions {
		return nil, fmt.Errorf("%w: manifest declares %dx%d, frame holds %dx%d",
			ErrInvalidResult, m.K, m.Dimensions, len(centroids), fp.DimensionsPerPoint)
	}

	return &Result{
		Centroids:  centroids,
		Reason:     reason,
		Iterations: m.Iterations,
		Movement:   m.Movement,
		Counts:     m.Counts,
	}, nil
}

// LoadLatestResult reads the result the CURRENT blob points at.
func LoadLatestResult(ctx context.Context, store blobstore.BlobStore) (*Result, error) {
	data, err := blobstore.ReadAll(ctx, store, blobstore.CurrentName)
	if err != nil {
		return nil, fmt.Errorf("load latest result: %w", err)
	}

	name := strings.TrimSpace(string(data))
	if name == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidResult, blobstore.CurrentName)
	}
	return LoadResult(ctx, store, name)
}

// decodeManifest reads the codec name with the portable JSON codec first and
// decodes the manifest with the codec that wrote it.
func decodeManifest(data []byte) (manifest, error) {
	var head struct {
		Codec string `json:"codec"`
	}
	if err := (codec.JSON{}).Unmarshal(data, &head); err != nil {
		return manifest{}, fmt.Errorf("%w: manifest: %w", ErrInvalidResult, err)
	}

	c, ok := codec.ByName(head.Codec)
	if !ok {
		return manifest{}, fmt.Errorf("%w: unknown manifest codec %q", ErrInvalidResult, head.Codec)
	}

	var m manifest
	if err := c.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("%w: manifest: %w", ErrInvalidResult, err)
	}
	return m, nil
}

func parseState(s string) (State, error) {
	for _, st := range []State{Converged, MaxIterationsReached} {
		if st.String() == s {
			return st, nil
		}
	}
	return Running, fmt.Errorf("%w: reason %q", ErrInvalidResult, s)
}

// Match pairs a reference centroid with the closest found centroid.
type Match struct {
	Known    int
	Found    int
	Distance float64
}

// MatchCentroids pairs every known centroid with its nearest found centroid.
// Several known centroids may match the same found one.
func MatchCentroids(found, known []point.Point) ([]Match, error) {
	matches := make([]Match, len(known))
	for i, k := range known {
		j, err := point.Nearest(k, found)
		if err != nil {
			return nil, fmt.Errorf("known centroid %d: %w", i, err)
		}
		d, err := k.DistanceTo(found[j])
		if err != nil {
			return nil, err
		}
		matches[i] = Match{Known: i, Found: j, Distance: d}
	}
	return matches, nil
}
