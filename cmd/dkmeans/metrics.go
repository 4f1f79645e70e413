package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/dkmeans"
)

// prometheusCollector implements dkmeans.MetricsCollector.
type prometheusCollector struct {
	stepLatency   *prometheus.HistogramVec
	iterations    prometheus.Gauge
	movement      prometheus.Gauge
	emptyClusters prometheus.Counter
	assigned      prometheus.Counter
	terminations  *prometheus.CounterVec
}

var _ dkmeans.MetricsCollector = (*prometheusCollector)(nil)

func newPrometheusCollector(reg prometheus.Registerer, rank int) *prometheusCollector {
	labels := prometheus.Labels{"rank": strconv.Itoa(rank)}

	c := &prometheusCollector{
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "dkmeans_step_latency_seconds",
			Help:        "Latency of assignment and reduction steps",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"step", "status"}),
		iterations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "dkmeans_iterations",
			Help:        "Number of completed iterations",
			ConstLabels: labels,
		}),
		movement: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "dkmeans_centroid_movement",
			Help:        "Largest centroid displacement of the last iteration",
			ConstLabels: labels,
		}),
		emptyClusters: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "dkmeans_empty_clusters_total",
			Help:        "Clusters that received no points, summed over iterations",
			ConstLabels: labels,
		}),
		assigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "dkmeans_points_assigned_total",
			Help:        "Points assigned by this worker",
			ConstLabels: labels,
		}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dkmeans_runs_total",
			Help:        "Finished runs by terminal state",
			ConstLabels: labels,
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.stepLatency,
		c.iterations,
		c.movement,
		c.emptyClusters,
		c.assigned,
		c.terminations,
	)
	return c
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *prometheusCollector) RecordAssign(points int, d time.Duration, err error) {
	c.stepLatency.WithLabelValues("assign", statusLabel(err)).Observe(d.Seconds())
	if err == nil {
		c.assigned.Add(float64(points))
	}
}

func (c *prometheusCollector) RecordReduce(d time.Duration, err error) {
	c.stepLatency.WithLabelValues("reduce", statusLabel(err)).Observe(d.Seconds())
}

func (c *prometheusCollector) RecordIteration(iteration int, movement float64, _ time.Duration) {
	c.iterations.Set(float64(iteration))
	c.movement.Set(movement)
}

func (c *prometheusCollector) RecordEmptyClusters(count int) {
	c.emptyClusters.Add(float64(count))
}

func (c *prometheusCollector) RecordTermination(reason dkmeans.State, iterations int) {
	c.iterations.Set(float64(iterations))
	c.terminations.WithLabelValues(reason.String()).Inc()
}

// metricsServer serves a dedicated Prometheus registry. A nil server hands
// out no-op collectors.
type metricsServer struct {
	reg    *prometheus.Registry
	srv    *http.Server
	logger *dkmeans.Logger
}

func startMetrics(addr string, logger *dkmeans.Logger) (*metricsServer, error) {
	if addr == "" {
		return nil, nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	m := &metricsServer{reg: prometheus.NewRegistry(), logger: logger}
	m.srv = &http.Server{Handler: m.handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", lis.Addr().String())
	return m, nil
}

func (m *metricsServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (m *metricsServer) collector(rank int) dkmeans.MetricsCollector {
	if m == nil {
		return dkmeans.NoopMetricsCollector{}
	}
	return newPrometheusCollector(m.reg, rank)
}

func (m *metricsServer) shutdown() {
	if m == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics shutdown", "error", err)
	}
}
