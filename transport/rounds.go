package transport

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Rounds tracks in-flight collective rounds keyed by sequence number.
//
// Each rank contributes once per sequence number. When all ranks arrived the
// contributions are combined in rank order and every waiter receives the
// same result. The round is forgotten once every rank picked it up.
type Rounds[T any] struct {
	size    int
	combine func([]T) (T, error)

	mu     sync.Mutex
	rounds map[uint64]*round[T]
	closed bool
}

type round[T any] struct {
	parts     []T
	arrived   *roaring.Bitmap
	collected int
	done      chan struct{}
	result    T
	err       error
}

// NewRounds returns a round tracker for a group of size ranks.
func NewRounds[T any](size int, combine func([]T) (T, error)) *Rounds[T] {
	return &Rounds[T]{
		size:    size,
		combine: combine,
		rounds:  make(map[uint64]*round[T]),
	}
}

// Size returns the group size.
func (r *Rounds[T]) Size() int { return r.size }

// Contribute adds rank's value to round seq and blocks until the round is
// complete or ctx is done.
//
// The result is shared between ranks; callers must not modify it.
func (r *Rounds[T]) Contribute(ctx context.Context, seq uint64, rank int, v T) (T, error) {
	var zero T

	if err := CheckRank(rank, r.size); err != nil {
		return zero, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return zero, ErrClosed
	}

	rd, ok := r.rounds[seq]
	if !ok {
		rd = &round[T]{
			parts:   make([]T, r.size),
			arrived: roaring.New(),
			done:    make(chan struct{}),
		}
		r.rounds[seq] = rd
	}

	if !rd.arrived.CheckedAdd(uint32(rank)) {
		r.mu.Unlock()
		return zero, ErrDuplicateContribution
	}
	rd.parts[rank] = v

	if int(rd.arrived.GetCardinality()) == r.size {
		rd.result, rd.err = r.combine(rd.parts)
		rd.parts = nil
		close(rd.done)
	}
	r.mu.Unlock()

	select {
	case <-rd.done:
	case <-ctx.Done():
		select {
		case <-rd.done:
			// Completed before the rank gave up; hand out the result.
		default:
			r.collect(seq, rd)
			return zero, ctx.Err()
		}
	}
	r.collect(seq, rd)

	if rd.err != nil {
		return zero, rd.err
	}
	return rd.result, nil
}

// collect counts one rank as done with rd. A rank that gave up on an
// incomplete round counts too, since it never returns to that sequence
// number; the round is forgotten once all ranks are done with it.
func (r *Rounds[T]) collect(seq uint64, rd *round[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd.collected++
	if rd.collected == r.size && r.rounds[seq] == rd {
		delete(r.rounds, seq)
	}
}

// Pending returns the number of rounds that have not been collected by every rank.
func (r *Rounds[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rounds)
}

// Close fails every incomplete round with ErrClosed and rejects new
// contributions.
func (r *Rounds[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for seq, rd := range r.rounds {
		select {
		case <-rd.done:
		default:
			rd.err = ErrClosed
			rd.parts = nil
			close(rd.done)
		}
		delete(r.rounds, seq)
	}
}
