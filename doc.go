// Package dkmeans implements K-Means clustering over a dataset partitioned
// across cooperating workers.
//
// Each worker owns one shard of the points. An iteration assigns every local
// point to its nearest centroid, folds the points into one (sum, count)
// aggregate per centroid, combines the aggregates of all workers and divides
// each combined sum by its combined count. Only aggregates and centroids
// travel between workers; points never leave their shard.
//
// # Quick Start
//
// In-process, with four workers:
//
//	group, _ := local.NewGroup(4)
//	defer group.Close()
//
//	shards, _ := dataset.Split(points, 4)
//	g, ctx := errgroup.WithContext(ctx)
//	for rank, t := range group.Transports() {
//	    g.Go(func() error {
//	        s, err := dkmeans.NewSolver(cfg, shards[rank], t)
//	        if err != nil {
//	            return err
//	        }
//	        res, err := s.Run(ctx)
//	        ...
//	    })
//	}
//
// Across processes, use the gRPC transport in transport/grpc: the coordinator
// serves the group and takes rank 0, workers dial it.
//
// # Termination
//
// A run ends in exactly one terminal State. Converged is reported when the
// largest centroid displacement of an iteration is below
// Config.ConvergenceThreshold; MaxIterationsReached when Config.MaxIterations
// iterations completed first. Convergence is checked first.
//
// # Empty Clusters
//
// A centroid that attracts no point anywhere keeps its previous position
// (reduce.Freeze). Other behavior can be plugged in with
// WithEmptyClusterPolicy.
//
// # Errors
//
// Configuration problems are reported as *ErrConfiguration before any
// iteration runs. Dimension and size mismatches surface as
// *ErrDimensionMismatch and *ErrSizeMismatch. No error is retried.
//
// # Observability
//
// Logging uses log/slog through Logger. Metrics go to a MetricsCollector.
// Tracing records Chrome trace events through an instrument.Recorder.
package dkmeans
