package dkmeans

// State is the lifecycle state of a run.
type State int32

const (
	// Running means further iterations are required.
	Running State = iota
	// Converged means the largest centroid displacement of the last iteration
	// fell below the convergence threshold.
	Converged
	// MaxIterationsReached means the iteration budget was used up before the
	// centroids converged.
	MaxIterationsReached
)

// String returns a human-readable name.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max-iterations-reached"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further iterations will run.
func (s State) Terminal() bool {
	return s == Converged || s == MaxIterationsReached
}

// next decides the state after an iteration. Convergence wins when both
// conditions hold in the same iteration.
func next(movement, threshold float64, iteration, maxIterations int) State {
	if movement < threshold {
		return Converged
	}
	if iteration >= maxIterations {
		return MaxIterationsReached
	}
	return Running
}
