package dkmeans

import (
	"math"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAssign is called after each local assignment step.
	// points is the shard size, err is nil if successful.
	RecordAssign(points int, duration time.Duration, err error)

	// RecordReduce is called after each global reduction, including the time
	// spent waiting for the other workers.
	RecordReduce(duration time.Duration, err error)

	// RecordIteration is called after each completed iteration with the
	// largest centroid displacement of that iteration.
	RecordIteration(iteration int, movement float64, duration time.Duration)

	// RecordEmptyClusters is called after each reduction with the number of
	// clusters that received no points.
	RecordEmptyClusters(count int)

	// RecordTermination is called once when a run reaches a terminal state.
	RecordTermination(reason State, iterations int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAssign(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordReduce(time.Duration, error)           {}
func (NoopMetricsCollector) RecordIteration(int, float64, time.Duration) {}
func (NoopMetricsCollector) RecordEmptyClusters(int)                     {}
func (NoopMetricsCollector) RecordTermination(State, int)                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AssignCount      atomic.Int64
	AssignErrors     atomic.Int64
	AssignPoints     atomic.Int64
	AssignTotalNanos atomic.Int64
	ReduceCount      atomic.Int64
	ReduceErrors     atomic.Int64
	ReduceTotalNanos atomic.Int64
	Iterations       atomic.Int64
	EmptyClusters    atomic.Int64
	lastMovement     atomic.Uint64
	terminal         atomic.Int32
}

// RecordAssign implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAssign(points int, duration time.Duration, err error) {
	b.AssignCount.Add(1)
	b.AssignTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AssignErrors.Add(1)
		return
	}
	b.AssignPoints.Add(int64(points))
}

// RecordReduce implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReduce(duration time.Duration, err error) {
	b.ReduceCount.Add(1)
	b.ReduceTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReduceErrors.Add(1)
	}
}

// RecordIteration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIteration(iteration int, movement float64, _ time.Duration) {
	b.Iterations.Store(int64(iteration))
	b.lastMovement.Store(math.Float64bits(movement))
}

// RecordEmptyClusters implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEmptyClusters(count int) {
	b.EmptyClusters.Add(int64(count))
}

// RecordTermination implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTermination(reason State, iterations int) {
	b.Iterations.Store(int64(iterations))
	b.terminal.Store(int32(reason))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AssignCount:    b.AssignCount.Load(),
		AssignErrors:   b.AssignErrors.Load(),
		AssignPoints:   b.AssignPoints.Load(),
		AssignAvgNanos: avg(b.AssignTotalNanos.Load(), b.AssignCount.Load()),
		ReduceCount:    b.ReduceCount.Load(),
		ReduceErrors:   b.ReduceErrors.Load(),
		ReduceAvgNanos: avg(b.ReduceTotalNanos.Load(), b.ReduceCount.Load()),
		Iterations:     b.Iterations.Load(),
		EmptyClusters:  b.EmptyClusters.Load(),
		LastMovement:   math.Float64frombits(b.lastMovement.Load()),
		State:          State(b.terminal.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AssignCount    int64
	AssignErrors   int64
	AssignPoints   int64
	AssignAvgNanos int64
	ReduceCount    int64
	ReduceErrors   int64
	ReduceAvgNanos int64
	Iterations     int64
	EmptyClusters  int64
	LastMovement   float64
	// State is Running until a termination was recorded.
	State State
}
