// Package local implements transport.Transport for ranks running as
// goroutines of one process.
package local

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/transport"
)

// Group is an in-process worker group of fixed size.
type Group struct {
	size   int
	reduce *transport.Rounds[aggregate.Set]
	bcast  *transport.Rounds[[]point.Point]
}

// NewGroup creates a group of size ranks. size must be positive.
func NewGroup(size int) (*Group, error) {
	if size <= 0 {
		return nil, &transport.ErrRankOutOfRange{Rank: 0, Size: size}
	}
	return &Group{
		size:   size,
		reduce: transport.NewRounds(size, transport.CombineAggregates),
		bcast:  transport.NewRounds(size, transport.PickRoot),
	}, nil
}

// Size returns the number of ranks.
func (g *Group) Size() int { return g.size }

// Transport returns the handle for rank. Each rank must use exactly one handle.
func (g *Group) Transport(rank int) (*Transport, error) {
	if err := transport.CheckRank(rank, g.size); err != nil {
		return nil, err
	}
	return &Transport{group: g, rank: rank}, nil
}

// Transports returns one handle per rank, in rank order.
func (g *Group) Transports() []*Transport {
	out := make([]*Transport, g.size)
	for i := range out {
		out[i] = &Transport{group: g, rank: i}
	}
	return out
}

// Close fails every pending collective.
func (g *Group) Close() error {
	g.reduce.Close()
	g.bcast.Close()
	return nil
}

// Transport is one rank's view of a Group.
//
// Sequence numbers advance per call, so each handle must be used by a single
// goroutine at a time.
type Transport struct {
	group     *Group
	rank      int
	reduceSeq uint64
	bcastSeq  uint64
	closed    atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Rank() int { return t.rank }
func (t *Transport) Size() int { return t.group.size }

func (t *Transport) ReduceAggregates(ctx context.Context, local aggregate.Set) (aggregate.Set, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}

	seq := t.reduceSeq
	t.reduceSeq++

	combined, err := t.group.reduce.Contribute(ctx, seq, t.rank, local.Clone())
	if err != nil {
		return nil, err
	}
	return combined.Clone(), nil
}

func (t *Transport) BroadcastCentroids(ctx context.Context, centroids []point.Point) ([]point.Point, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}

	seq := t.bcastSeq
	t.bcastSeq++

	var contribution []point.Point
	if t.rank == transport.Root {
		contribution = transport.ClonePoints(centroids)
	}

	out, err := t.group.bcast.Contribute(ctx, seq, t.rank, contribution)
	if err != nil {
		return nil, err
	}
	return transport.ClonePoints(out), nil
}

// Close marks the handle closed. Pending collectives of other ranks are not
// affected; use Group.Close to abort the whole group.
func (t *Transport) Close() error {
	t.closed.Store(true)
	return nil
}
