package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dkmeans"
	"github.com/hupe1980/dkmeans/blobstore"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/instrument"
)

func TestParseFlags_Defaults(t *testing.T) {
	o, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, roleLocal, o.role)
	assert.Equal(t, 2, o.workers)
	assert.Equal(t, codec.CompressionLZ4, o.compression)
	assert.Equal(t, slog.LevelInfo, o.logLevel)
	assert.Equal(t, dkmeans.DefaultK, o.cfg.K)
	assert.Equal(t, 3, o.cfg.Dimensionality)
	assert.Len(t, o.data.Ranges, 3)
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{
		"-role", "coordinator",
		"-workers", "4",
		"-k", "5",
		"-dims", "8",
		"-samples", "500",
		"-compression", "zstd",
		"-log-level", "debug",
		"-log-format", "json",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, roleCoordinator, o.role)
	assert.Equal(t, 4, o.workers)
	assert.Equal(t, 5, o.cfg.K)
	assert.Equal(t, 8, o.cfg.Dimensionality)
	assert.Equal(t, 500, o.data.NumSamples)
	assert.Nil(t, o.data.Ranges)
	assert.Equal(t, codec.CompressionZSTD, o.compression)
	assert.Equal(t, slog.LevelDebug, o.logLevel)
}

func TestParseFlags_Errors(t *testing.T) {
	tests := map[string][]string{
		"UnknownRole":        {"-role", "observer"},
		"NoWorkers":          {"-workers", "0"},
		"ZeroK":              {"-k", "0"},
		"BadThreshold":       {"-threshold", "-1"},
		"BadCompression":     {"-compression", "snappy"},
		"BadLogFormat":       {"-log-format", "xml"},
		"NoCoordinator":      {"-role", "worker", "-coordinator", ""},
		"NegativeSpread":     {"-spread", "-2"},
		"PositionalArgument": {"extra"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseFlags(args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestRunLocal(t *testing.T) {
	out := t.TempDir()
	o, err := parseFlags([]string{
		"-workers", "3",
		"-samples", "60",
		"-labels",
		"-out", out,
		"-trace", "trace.json",
		"-log-level", "error",
	}, io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout bytes.Buffer
	require.NoError(t, run(ctx, o, &stdout))
	assert.Contains(t, stdout.String(), "converged after")
	assert.Contains(t, stdout.String(), "true cluster 1: centroid")

	store := blobstore.NewLocalStore(out)
	res, err := dkmeans.LoadLatestResult(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, dkmeans.Converged, res.Reason)
	assert.Len(t, res.Centroids, 2)

	var total uint64
	for _, n := range res.Counts {
		total += n
	}
	assert.Equal(t, uint64(60), total)

	data, err := blobstore.ReadAll(ctx, store, "trace.json")
	require.NoError(t, err)
	events, err := instrument.DecodeTrace(data)
	require.NoError(t, err)

	pids := map[int]bool{}
	for _, e := range events {
		pids[e.Pid] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, pids)
}

func TestRunLocal_TraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	o, err := parseFlags([]string{"-trace", path, "-log-level", "error"}, io.Discard)
	require.NoError(t, err)

	require.NoError(t, run(context.Background(), o, io.Discard))
	assert.FileExists(t, path)
}

func TestRunDistributed(t *testing.T) {
	addr := freeAddr(t)

	coordinator, err := parseFlags([]string{
		"-role", "coordinator",
		"-workers", "3",
		"-samples", "90",
		"-listen", addr,
		"-trace", filepath.Join(t.TempDir(), "trace.json"),
		"-log-level", "error",
	}, io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var stdout bytes.Buffer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return run(gctx, coordinator, &stdout) })
	for range 2 {
		worker, err := parseFlags([]string{"-role", "worker", "-coordinator", addr, "-log-level", "error"}, io.Discard)
		require.NoError(t, err)
		g.Go(func() error { return run(gctx, worker, io.Discard) })
	}
	require.NoError(t, g.Wait())

	// The same flags in one process produce the same centroids.
	single, err := parseFlags([]string{"-workers", "3", "-samples", "90", "-log-level", "error"}, io.Discard)
	require.NoError(t, err)
	var want bytes.Buffer
	require.NoError(t, run(ctx, single, &want))

	assert.Equal(t, want.String(), stdout.String())
}

func TestMetricsHandler(t *testing.T) {
	m, err := startMetrics("127.0.0.1:0", dkmeans.NoopLogger())
	require.NoError(t, err)
	defer m.shutdown()

	mc := m.collector(1)
	mc.RecordAssign(10, time.Millisecond, nil)
	mc.RecordReduce(time.Millisecond, nil)
	mc.RecordIteration(3, 0.5, time.Millisecond)
	mc.RecordEmptyClusters(2)
	mc.RecordTermination(dkmeans.Converged, 3)

	srv := httptest.NewServer(m.handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `dkmeans_points_assigned_total{rank="1"} 10`)
	assert.Contains(t, text, `dkmeans_empty_clusters_total{rank="1"} 2`)
	assert.Contains(t, text, `dkmeans_runs_total{rank="1",reason="converged"} 1`)
	assert.Contains(t, text, `dkmeans_iterations{rank="1"} 3`)

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMetricsDisabled(t *testing.T) {
	m, err := startMetrics("", dkmeans.NoopLogger())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.IsType(t, dkmeans.NoopMetricsCollector{}, m.collector(0))
	m.shutdown()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}
