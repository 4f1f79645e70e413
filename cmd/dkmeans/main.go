// Command dkmeans clusters a generated data set with distributed K-Means.
//
// The local role runs every worker in one process. The coordinator role
// serves the worker group over gRPC and acts as rank 0; each worker role
// process joins it, fetches its shard and takes part in every collective.
//
//	dkmeans -role coordinator -workers 4 -listen :7070 -out ./results
//	dkmeans -role worker -coordinator localhost:7070
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/dkmeans"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/dataset"
)

const (
	roleLocal       = "local"
	roleCoordinator = "coordinator"
	roleWorker      = "worker"
)

type options struct {
	role        string
	workers     int
	data        dataset.Config
	cfg         dkmeans.Config
	parallelism int
	labels      bool

	trace       string
	out         string
	compression codec.Compression

	s3Bucket      string
	s3Prefix      string
	ddbTable      string
	minioEndpoint string
	minioBucket   string
	minioSecure   bool

	listen      string
	coordinator string
	metricsAddr string

	logFormat string
	logLevel  slog.Level

	memoryLimit int64
	ioLimit     int64
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	o := &options{
		data:        dataset.DefaultConfig(),
		cfg:         dkmeans.DefaultConfig(),
		compression: codec.CompressionLZ4,
	}

	fs := flag.NewFlagSet("dkmeans", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.role, "role", roleLocal, "local, coordinator or worker")
	fs.IntVar(&o.workers, "workers", 2, "number of workers, the coordinator included")

	fs.IntVar(&o.data.NumSamples, "samples", o.data.NumSamples, "number of generated points")
	fs.IntVar(&o.data.Dimensions, "dims", o.data.Dimensions, "dimensionality of generated points")
	fs.IntVar(&o.data.NumTrueClusters, "true-clusters", o.data.NumTrueClusters, "number of generated clusters")
	fs.Float64Var(&o.data.Spread, "spread", o.data.Spread, "standard deviation of points around their cluster")
	fs.Uint64Var(&o.data.Seed, "data-seed", o.data.Seed, "seed of the data generator")

	fs.IntVar(&o.cfg.K, "k", o.cfg.K, "number of centroids")
	fs.Int64Var(&o.cfg.Seed, "seed", o.cfg.Seed, "seed of the initial centroid selection")
	fs.IntVar(&o.cfg.MaxIterations, "max-iter", o.cfg.MaxIterations, "iteration budget")
	fs.Float64Var(&o.cfg.ConvergenceThreshold, "threshold", o.cfg.ConvergenceThreshold, "convergence threshold on centroid movement")
	fs.IntVar(&o.parallelism, "parallelism", 0, "assignment goroutines per worker (0: one per CPU)")
	fs.BoolVar(&o.labels, "labels", false, "compute final cluster labels of every point")

	fs.StringVar(&o.trace, "trace", "", "write a Chrome trace to this path (a blob name when a store is set)")
	fs.StringVar(&o.out, "out", "", "store results in this directory")
	fs.Func("compression", "point frame compression: none, lz4 or zstd (default lz4)", func(s string) error {
		c, err := codec.ParseCompression(s)
		if err != nil {
			return err
		}
		o.compression = c
		return nil
	})

	fs.StringVar(&o.s3Bucket, "s3-bucket", "", "store results in this S3 bucket")
	fs.StringVar(&o.s3Prefix, "s3-prefix", "", "key prefix inside the S3 bucket")
	fs.StringVar(&o.ddbTable, "ddb-table", "", "DynamoDB table guarding the CURRENT result pointer")
	fs.StringVar(&o.minioEndpoint, "minio-endpoint", "", "store results in MinIO at this endpoint")
	fs.StringVar(&o.minioBucket, "minio-bucket", "dkmeans", "MinIO bucket")
	fs.BoolVar(&o.minioSecure, "minio-secure", false, "connect to MinIO over TLS")

	fs.StringVar(&o.listen, "listen", ":7070", "coordinator listen address")
	fs.StringVar(&o.coordinator, "coordinator", "localhost:7070", "coordinator address of a worker")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	fs.StringVar(&o.logFormat, "log-format", "text", "text or json")
	fs.TextVar(&o.logLevel, "log-level", slog.LevelInfo, "debug, info, warn or error")

	fs.Int64Var(&o.memoryLimit, "memory-limit", 0, "bytes of point memory per worker (0: unlimited)")
	fs.Int64Var(&o.ioLimit, "io-limit", 0, "upload bytes per second (0: unlimited)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	// The default ranges only fit the default dimensionality.
	if len(o.data.Ranges) != o.data.Dimensions {
		o.data.Ranges = nil
	}
	return o, o.validate()
}

func (o *options) validate() error {
	switch o.role {
	case roleLocal, roleCoordinator:
		if o.workers < 1 {
			return fmt.Errorf("-workers must be at least 1, got %d", o.workers)
		}
		if err := o.data.Validate(); err != nil {
			return err
		}
		o.cfg.Dimensionality = o.data.Dimensions
		if err := o.cfg.Validate(); err != nil {
			return err
		}
	case roleWorker:
		if o.coordinator == "" {
			return errors.New("-coordinator is required for workers")
		}
	default:
		return fmt.Errorf("unknown role %q", o.role)
	}

	switch o.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", o.logFormat)
	}
	return nil
}

func (o *options) logger() *dkmeans.Logger {
	if o.logFormat == "json" {
		return dkmeans.NewJSONLogger(o.logLevel)
	}
	return dkmeans.NewTextLogger(o.logLevel)
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options, stdout io.Writer) error {
	switch o.role {
	case roleCoordinator:
		return runCoordinator(ctx, o, stdout)
	case roleWorker:
		return runWorker(ctx, o)
	default:
		return runLocal(ctx, o, stdout)
	}
}
