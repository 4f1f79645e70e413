package dkmeans

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/dkmeans/internal/assign"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/reduce"
	"github.com/hupe1980/dkmeans/resource"
	"github.com/hupe1980/dkmeans/transport"
)

// Solver runs distributed K-Means for one worker of a group.
//
// Every worker of the group builds its own Solver over its own shard with the
// same Config and calls Run. Workers only exchange data through the
// transport's collectives, so the same program scales from one process to
// many.
type Solver struct {
	cfg   Config
	shard []point.Point
	dim   int
	t     transport.Transport
	opts  options

	// initial holds the root worker's initial centroids; nil on other ranks.
	initial []point.Point

	// previous and current are the two centroid generations of an iteration.
	previous []point.Point
	current  []point.Point

	state     atomic.Int32
	iteration atomic.Int64
	ran       atomic.Bool
}

// NewSolver validates the configuration and prepares a run over shard.
//
// On the root rank the initial centroids are chosen here, so a K larger than
// the sample source fails before any collective starts. The shard is not
// copied and must not be modified while the solver runs.
func NewSolver(cfg Config, shard []point.Point, t transport.Transport, optFns ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, configError("Transport", "must not be nil", ErrNilTransport)
	}

	opts := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		policy:           reduce.Freeze{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.logger = opts.logger.WithRank(t.Rank()).WithK(cfg.K)

	s := &Solver{
		cfg:   cfg,
		shard: shard,
		dim:   cfg.Dimensionality,
		t:     t,
		opts:  opts,
	}

	if len(shard) > 0 {
		dim, err := point.CommonDim(shard)
		if err != nil {
			return nil, fmt.Errorf("shard: %w", err)
		}
		if err := s.checkDim(dim); err != nil {
			return nil, fmt.Errorf("shard: %w", err)
		}
	}

	if t.Rank() == transport.Root {
		initial, err := s.chooseInitial()
		if err != nil {
			return nil, err
		}
		s.initial = initial
	}

	return s, nil
}

func (s *Solver) chooseInitial() ([]point.Point, error) {
	if s.opts.initialCentroids != nil {
		if len(s.opts.initialCentroids) != s.cfg.K {
			return nil, configError("InitialCentroids", fmt.Sprintf("%d centroids given for K=%d", len(s.opts.initialCentroids), s.cfg.K), nil)
		}
		dim, err := point.CommonDim(s.opts.initialCentroids)
		if err != nil {
			return nil, fmt.Errorf("initial centroids: %w", err)
		}
		if err := s.checkDim(dim); err != nil {
			return nil, fmt.Errorf("initial centroids: %w", err)
		}
		return transport.ClonePoints(s.opts.initialCentroids), nil
	}

	source := s.opts.sampleSource
	if source == nil {
		source = s.shard
	}
	initial, err := SelectInitialCentroids(source, s.cfg.K, s.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := s.checkDim(initial[0].Dim()); err != nil {
		return nil, fmt.Errorf("initial centroids: %w", err)
	}
	return initial, nil
}

// checkDim pins the run's dimensionality to dim on first use.
func (s *Solver) checkDim(dim int) error {
	if s.dim == 0 {
		s.dim = dim
		return nil
	}
	if dim != s.dim {
		return &ErrDimensionMismatch{Expected: s.dim, Actual: dim}
	}
	return nil
}

// State returns the current state. It is Running until Run terminates.
func (s *Solver) State() State {
	return State(s.state.Load())
}

// Iteration returns the number of completed iterations.
func (s *Solver) Iteration() int {
	return int(s.iteration.Load())
}

// Run broadcasts the initial centroids from the root worker and iterates
// until the centroids converge or the iteration budget is used up.
//
// Run is a collective: every worker of the group must call it. Any error is
// fatal for the whole run; a worker that fails leaves the others blocked
// until their contexts end.
func (s *Solver) Run(ctx context.Context) (*Result, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	span := s.opts.recorder.Start("Solver.Run")
	defer span.End()

	res, err := s.run(ctx)
	if err != nil {
		s.opts.logger.LogTermination(ctx, Running, s.Iteration(), 0, err)
		return nil, err
	}

	s.opts.metricsCollector.RecordTermination(res.Reason, res.Iterations)
	s.opts.logger.LogTermination(ctx, res.Reason, res.Iterations, res.Movement, nil)
	return res, nil
}

func (s *Solver) run(ctx context.Context) (*Result, error) {
	if len(s.shard) > 0 {
		bytes := resource.PointBytes(len(s.shard), s.dim)
		if err := s.opts.resources.AcquireMemory(bytes); err != nil {
			return nil, fmt.Errorf("reserve shard memory: %w", err)
		}
		defer s.opts.resources.ReleaseMemory(bytes)
	}

	bspan := s.opts.recorder.Start("Broadcast")
	current, err := s.t.BroadcastCentroids(ctx, s.initial)
	bspan.End()
	if err != nil {
		return nil, fmt.Errorf("broadcast initial centroids: %w", err)
	}
	if err := s.checkBroadcast(current); err != nil {
		return nil, err
	}
	s.current = current

	var (
		movement float64
		counts   []uint64
	)

	for {
		// The generation computed last becomes the input of this iteration.
		s.previous, s.current = s.current, nil

		iteration := s.Iteration() + 1
		ispan := s.opts.recorder.Start("Iteration")
		start := time.Now()

		outcome, err := s.iterate(ctx, iteration)
		if err != nil {
			ispan.End()
			return nil, err
		}
		s.current = outcome.Centroids
		counts = outcome.Combined.Counts()

		movement, err = point.MaxDisplacement(s.previous, s.current)
		if err != nil {
			ispan.End()
			return nil, fmt.Errorf("iteration %d: movement: %w", iteration, err)
		}

		s.iteration.Store(int64(iteration))
		ispan.End()

		elapsed := time.Since(start)
		s.opts.metricsCollector.RecordIteration(iteration, movement, elapsed)
		s.opts.metricsCollector.RecordEmptyClusters(outcome.EmptyCount())
		s.opts.logger.LogIteration(ctx, iteration, movement, outcome.EmptyCount(), elapsed)

		st := next(movement, s.cfg.ConvergenceThreshold, iteration, s.cfg.MaxIterations)
		s.state.Store(int32(st))
		if st.Terminal() {
			break
		}
	}

	res := &Result{
		Rank:       s.t.Rank(),
		Centroids:  transport.ClonePoints(s.current),
		Reason:     s.State(),
		Iterations: s.Iteration(),
		Movement:   movement,
		Counts:     counts,
	}

	if s.opts.labels {
		labels, err := s.label(ctx)
		if err != nil {
			return nil, err
		}
		res.Labels = labels
	}
	return res, nil
}

func (s *Solver) iterate(ctx context.Context, iteration int) (reduce.Outcome, error) {
	aspan := s.opts.recorder.Start("Assign")
	start := time.Now()
	local, err := assign.Step(ctx, s.previous, s.shard, assign.Options{
		Parallelism: s.opts.parallelism,
		Controller:  s.opts.resources,
		Recorder:    s.opts.recorder,
	})
	s.opts.metricsCollector.RecordAssign(len(s.shard), time.Since(start), err)
	aspan.End()
	if err != nil {
		return reduce.Outcome{}, fmt.Errorf("iteration %d: assign: %w", iteration, err)
	}

	rspan := s.opts.recorder.Start("Reduce")
	start = time.Now()
	outcome, err := reduce.Step(ctx, s.t, s.previous, local, s.opts.policy)
	s.opts.metricsCollector.RecordReduce(time.Since(start), err)
	rspan.End()
	if err != nil {
		s.opts.logger.LogReduce(ctx, iteration, 0, err)
		return reduce.Outcome{}, fmt.Errorf("iteration %d: %w", iteration, err)
	}
	s.opts.logger.LogReduce(ctx, iteration, outcome.Combined.Total(), nil)

	return outcome, nil
}

func (s *Solver) checkBroadcast(centroids []point.Point) error {
	if len(centroids) != s.cfg.K {
		return configError("K", fmt.Sprintf("received %d initial centroids for K=%d", len(centroids), s.cfg.K), nil)
	}
	dim, err := point.CommonDim(centroids)
	if err != nil {
		return fmt.Errorf("initial centroids: %w", err)
	}
	if err := s.checkDim(dim); err != nil {
		return fmt.Errorf("initial centroids: %w", err)
	}
	return nil
}

// label assigns every shard point to its final centroid. It is local to the
// worker and does not touch the transport.
func (s *Solver) label(ctx context.Context) ([]int, error) {
	labels := make([]int, len(s.shard))
	if len(s.shard) == 0 {
		return labels, nil
	}

	_, err := assign.Step(ctx, s.current, s.shard, assign.Options{
		Parallelism: s.opts.parallelism,
		Controller:  s.opts.resources,
		Labels:      labels,
	})
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	return labels, nil
}
