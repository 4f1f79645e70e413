package dkmeans

import (
	"github.com/hupe1980/dkmeans/instrument"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/reduce"
	"github.com/hupe1980/dkmeans/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	recorder         *instrument.Recorder
	initialCentroids []point.Point
	sampleSource     []point.Point
	parallelism      int
	resources        *resource.Controller
	policy           reduce.EmptyClusterPolicy
	labels           bool
}

// Option configures a Solver.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithRecorder traces the run into r. A nil recorder records nothing.
func WithRecorder(r *instrument.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithInitialCentroids makes the root worker broadcast the given centroids
// instead of sampling them. Ignored on every other rank.
func WithInitialCentroids(centroids []point.Point) Option {
	return func(o *options) {
		o.initialCentroids = centroids
	}
}

// WithSampleSource makes the root worker draw its initial centroids from
// points instead of its own shard, typically the full dataset before it was
// partitioned. Ignored on every other rank.
func WithSampleSource(points []point.Point) Option {
	return func(o *options) {
		o.sampleSource = points
	}
}

// WithParallelism sets the number of chunks a shard is split into during
// assignment. If n <= 0, the resource controller's worker count is used.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithResourceController bounds memory and assignment goroutines.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithEmptyClusterPolicy sets how clusters without points are handled.
// Defaults to reduce.Freeze.
func WithEmptyClusterPolicy(p reduce.EmptyClusterPolicy) Option {
	return func(o *options) {
		if p == nil {
			p = reduce.Freeze{}
		}
		o.policy = p
	}
}

// WithLabels makes Run report the final cluster index of every shard point.
func WithLabels() Option {
	return func(o *options) {
		o.labels = true
	}
}
