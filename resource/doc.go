// Package resource bounds the per-process resources a worker spends on a run.
//
// A Controller manages three resource types:
//
//   - Memory: accounting for the in-memory shard and centroid buffers (fail-fast)
//   - Worker slots: how many assignment goroutines may fold points at once
//   - IO: a token bucket throttling trace and result uploads
//
// # Memory
//
// Shards are held fully in memory. AcquireMemory reserves bytes without
// blocking and returns ErrMemoryLimitExceeded when the limit would be crossed:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if err := rc.AcquireMemory(resource.PointBytes(n, dim)); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(resource.PointBytes(n, dim))
//
// # Worker Slots
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # IO Rate Limiting
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
