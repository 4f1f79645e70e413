package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hupe1980/dkmeans"
	"github.com/hupe1980/dkmeans/blobstore"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/dataset"
	"github.com/hupe1980/dkmeans/instrument"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/resource"
	"github.com/hupe1980/dkmeans/transport"
	grpctransport "github.com/hupe1980/dkmeans/transport/grpc"
	"github.com/hupe1980/dkmeans/transport/local"
)

// workerLeaveTimeout bounds how long the coordinator waits for workers to
// push their traces and leave.
const workerLeaveTimeout = 30 * time.Second

// settings is handed from the coordinator to every worker on join.
type settings struct {
	Config      dkmeans.Config
	Parallelism int
	Labels      bool
	Trace       bool
}

func (o *options) settings() settings {
	return settings{
		Config:      o.cfg,
		Parallelism: o.parallelism,
		Labels:      o.labels,
		Trace:       o.trace != "",
	}
}

func (o *options) resources() *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryLimit,
		IOLimitBytesPerSec: o.ioLimit,
	})
}

func (s settings) solverOptions(logger *dkmeans.Logger, mc dkmeans.MetricsCollector, rec *instrument.Recorder, rc *resource.Controller) []dkmeans.Option {
	opts := []dkmeans.Option{
		dkmeans.WithLogger(logger),
		dkmeans.WithMetricsCollector(mc),
		dkmeans.WithRecorder(rec),
		dkmeans.WithResourceController(rc),
		dkmeans.WithParallelism(s.Parallelism),
	}
	if s.Labels {
		opts = append(opts, dkmeans.WithLabels())
	}
	return opts
}

// traceWriter returns the writer collecting the events of every rank, or nil
// when tracing is off. With a store the trace becomes a blob, otherwise a file.
func traceWriter(o *options, store blobstore.BlobStore, rc *resource.Controller) instrument.Writer {
	switch {
	case o.trace == "":
		return nil
	case store != nil:
		return instrument.NewBlobWriter(store, o.trace, rc)
	default:
		return instrument.NewFileWriter(o.trace)
	}
}

func runLocal(ctx context.Context, o *options, stdout io.Writer) error {
	logger := o.logger()

	ds, err := dataset.Generate(o.data)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, o)
	if err != nil {
		return err
	}

	metrics, err := startMetrics(o.metricsAddr, logger)
	if err != nil {
		return err
	}
	defer metrics.shutdown()

	group, err := local.NewGroup(o.workers)
	if err != nil {
		return err
	}
	defer group.Close()

	st := o.settings()
	rootResources := o.resources()
	traces := traceWriter(o, store, rootResources)

	recorders := make([]*instrument.Recorder, o.workers)
	results := make([]*dkmeans.Result, o.workers)

	g, gctx := errgroup.WithContext(ctx)
	for rank, t := range group.Transports() {
		shard, err := ds.Shard(rank, o.workers)
		if err != nil {
			return err
		}

		rc := rootResources
		if rank != transport.Root {
			rc = o.resources()
		}

		if traces != nil {
			w := traces
			if rank != transport.Root {
				w = instrument.NewGatherWriter(instrument.WriterSink{W: traces}, rank)
			}
			recorders[rank] = instrument.NewRecorder(w, instrument.WithProcessID(rank))
		}

		opts := st.solverOptions(logger, metrics.collector(rank), recorders[rank], rc)
		if rank == transport.Root {
			opts = append(opts, dkmeans.WithSampleSource(ds.Points))
		}

		s, err := dkmeans.NewSolver(st.Config, shard, t, opts...)
		if err != nil {
			return fmt.Errorf("worker %d: %w", rank, err)
		}

		g.Go(func() error {
			res, err := s.Run(gctx)
			if err != nil {
				return fmt.Errorf("worker %d: %w", rank, err)
			}
			results[rank] = res
			return nil
		})
	}
	runErr := g.Wait()

	// The root recorder owns the shared writer and must close last.
	var traceErr error
	for rank := len(recorders) - 1; rank >= 0; rank-- {
		traceErr = errors.Join(traceErr, recorders[rank].Close(ctx))
	}
	if runErr != nil {
		return runErr
	}
	if traceErr != nil {
		return fmt.Errorf("trace: %w", traceErr)
	}

	for _, res := range results {
		logLabels(logger, res)
	}
	return report(ctx, o, stdout, store, results[transport.Root], ds.KnownGoodCentroids)
}

func runCoordinator(ctx context.Context, o *options, stdout io.Writer) error {
	logger := o.logger()

	ds, err := dataset.Generate(o.data)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, o)
	if err != nil {
		return err
	}

	metrics, err := startMetrics(o.metricsAddr, logger)
	if err != nil {
		return err
	}
	defer metrics.shutdown()

	st := o.settings()
	encoded, err := codec.Default.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	rc := o.resources()
	traces := traceWriter(o, store, rc)

	var sink instrument.Sink
	if traces != nil {
		sink = instrument.WriterSink{W: traces}
	}

	srv, err := grpctransport.NewServer(grpctransport.Config{
		Size:        o.workers,
		Compression: o.compression,
		Settings:    encoded,
		Shards: func(rank int) ([]point.Point, error) {
			return ds.Shard(rank, o.workers)
		},
		Traces: sink,
		Logger: logger.Logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	lis, err := net.Listen("tcp", o.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", o.listen, err)
	}

	gs := grpc.NewServer(grpctransport.ServerOptions(logger.Logger)...)
	srv.Register(gs)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := gs.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "error", err)
		}
	}()
	defer gs.Stop()

	logger.Info("coordinator listening", "addr", lis.Addr().String(), "workers", o.workers)

	shard, err := ds.Shard(transport.Root, o.workers)
	if err != nil {
		return err
	}

	var rec *instrument.Recorder
	if traces != nil {
		rec = instrument.NewRecorder(traces, instrument.WithProcessID(transport.Root))
	}

	opts := st.solverOptions(logger, metrics.collector(transport.Root), rec, rc)
	opts = append(opts, dkmeans.WithSampleSource(ds.Points))

	s, err := dkmeans.NewSolver(st.Config, shard, srv.Root(), opts...)
	if err != nil {
		return err
	}

	res, err := s.Run(ctx)
	if err != nil {
		_ = rec.Close(ctx)
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, workerLeaveTimeout)
	if err := srv.WaitLeft(waitCtx); err != nil {
		logger.Warn("workers did not leave", "error", err)
	}
	cancel()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	gs.GracefulStop()

	if err := rec.Close(ctx); err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	logLabels(logger, res)
	return report(ctx, o, stdout, store, res, ds.KnownGoodCentroids)
}

func runWorker(ctx context.Context, o *options) error {
	logger := o.logger()

	client, err := grpctransport.Dial(ctx, o.coordinator,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.WaitForReady(true)),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	rank := client.Rank()
	wlog := logger.WithRank(rank)

	var st settings
	if err := codec.Default.Unmarshal(client.Settings(), &st); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	shard, err := client.FetchShard(ctx)
	if err != nil {
		return err
	}
	wlog.Info("joined", "size", client.Size(), "points", len(shard))

	metrics, err := startMetrics(o.metricsAddr, wlog)
	if err != nil {
		return err
	}
	defer metrics.shutdown()

	var rec *instrument.Recorder
	if st.Trace {
		rec = instrument.NewRecorder(instrument.NewGatherWriter(client, rank), instrument.WithProcessID(rank))
	}

	s, err := dkmeans.NewSolver(st.Config, shard, client, st.solverOptions(logger, metrics.collector(rank), rec, o.resources())...)
	if err != nil {
		return err
	}

	res, err := s.Run(ctx)
	traceErr := rec.Close(ctx)
	if err != nil {
		return err
	}
	if traceErr != nil {
		wlog.Warn("trace push failed", "error", traceErr)
	}

	logLabels(logger, res)
	return client.Close()
}

func logLabels(logger *dkmeans.Logger, res *dkmeans.Result) {
	if res == nil || res.Labels == nil {
		return
	}
	counts := make([]int, len(res.Centroids))
	for _, l := range res.Labels {
		counts[l]++
	}
	logger.WithRank(res.Rank).Info("labels", "points", len(res.Labels), "per_cluster", counts)
}

// report prints the final centroids and how well they recover the generated
// clusters, then stores the result if a store is configured.
func report(ctx context.Context, o *options, w io.Writer, store blobstore.BlobStore, res *dkmeans.Result, known []point.Point) error {
	fmt.Fprintf(w, "%s after %d iterations (movement %.6g)\n", res.Reason, res.Iterations, res.Movement)
	for i, c := range res.Centroids {
		fmt.Fprintf(w, "centroid %d: %s n=%d\n", i, c, res.Counts[i])
	}

	matches, err := dkmeans.MatchCentroids(res.Centroids, known)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Fprintf(w, "true cluster %d: centroid %d at distance %.4g\n", m.Known, m.Found, m.Distance)
	}

	if store == nil {
		return nil
	}

	name := "runs/" + time.Now().UTC().Format("20060102T150405.000000000Z")
	if err := dkmeans.SaveResult(ctx, store, name, res, o.compression); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	fmt.Fprintf(w, "saved %s\n", name)
	return nil
}
