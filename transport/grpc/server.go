package grpctransport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/instrument"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/transport"
)

// ShardSource returns the points owned by rank.
type ShardSource func(rank int) ([]point.Point, error)

// Config configures a Server.
type Config struct {
	// Size is the number of ranks, the coordinator included.
	Size int

	// Compression is used for every point frame the group exchanges.
	Compression codec.Compression

	// Settings is handed to every worker on Join, typically the encoded run
	// configuration. It is opaque to the transport.
	Settings []byte

	// Shards serves FetchShard. If nil, FetchShard fails.
	Shards ShardSource

	// Traces receives trace events pushed by workers. If nil, they are dropped.
	Traces instrument.Sink

	// Logger logs joins and leaves. If nil, logging is disabled.
	Logger *slog.Logger
}

// Server coordinates a worker group. Rank 0 lives in the server process and
// uses Root; the other ranks connect as Clients.
type Server struct {
	cfg    Config
	reduce *transport.Rounds[aggregate.Set]
	bcast  *transport.Rounds[[]point.Point]

	mu       sync.Mutex
	nextRank int
	joined   *roaring.Bitmap
	tokens   map[int]string
	left     *roaring.Bitmap
	allLeft  chan struct{}

	root *rootTransport
}

// collectiveServer is the handler type of the service descriptor.
type collectiveServer interface {
	isCollectiveServer()
}

func (*Server) isCollectiveServer() {}

// NewServer creates the coordinator side of a group.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Size <= 0 {
		return nil, &transport.ErrRankOutOfRange{Rank: 0, Size: cfg.Size}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		cfg:      cfg,
		reduce:   transport.NewRounds(cfg.Size, transport.CombineAggregates),
		bcast:    transport.NewRounds(cfg.Size, transport.PickRoot),
		nextRank: transport.Root + 1,
		joined:   roaring.New(),
		tokens:   make(map[int]string, cfg.Size),
		left:     roaring.New(),
		allLeft:  make(chan struct{}),
	}
	s.joined.Add(transport.Root)
	s.left.Add(transport.Root)
	if cfg.Size == 1 {
		close(s.allLeft)
	}
	s.root = &rootTransport{s: s}
	return s, nil
}

// Register adds the collective service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Root returns the coordinator's own rank 0 handle.
func (s *Server) Root() transport.Transport {
	return s.root
}

// Joined returns the number of ranks in the group so far, the coordinator
// included.
func (s *Server) Joined() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.joined.GetCardinality())
}

// WaitLeft blocks until every remote rank left the group or ctx is done.
func (s *Server) WaitLeft(ctx context.Context) error {
	select {
	case <-s.allLeft:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close fails every pending collective.
func (s *Server) Close() error {
	s.reduce.Close()
	s.bcast.Close()
	return nil
}

// checkJoined verifies that rank joined over the wire and that token is the
// one Join issued to it. The root rank holds no token.
func (s *Server) checkJoined(rank int, token string) error {
	if err := transport.CheckRank(rank, s.cfg.Size); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined.Contains(uint32(rank)) {
		return fmt.Errorf("%w: rank %d", ErrNotJoined, rank)
	}
	if want, ok := s.tokens[rank]; !ok || token != want {
		return fmt.Errorf("%w: rank %d", ErrRankToken, rank)
	}
	return nil
}

func (s *Server) join(ctx context.Context, _ *joinRequest) (*joinResponse, error) {
	s.mu.Lock()
	if s.nextRank >= s.cfg.Size {
		s.mu.Unlock()
		return nil, ErrGroupFull
	}
	rank := s.nextRank
	s.nextRank++
	token := uuid.NewString()
	s.joined.Add(uint32(rank))
	s.tokens[rank] = token
	s.mu.Unlock()

	s.cfg.Logger.InfoContext(ctx, "worker joined", "rank", rank, "size", s.cfg.Size)

	return &joinResponse{
		Rank:        rank,
		Token:       token,
		Size:        s.cfg.Size,
		Compression: s.cfg.Compression.String(),
		Settings:    s.cfg.Settings,
	}, nil
}

func (s *Server) fetchShard(_ context.Context, req *fetchShardRequest) (*fetchShardResponse, error) {
	if err := s.checkJoined(req.Rank, req.Token); err != nil {
		return nil, err
	}
	if s.cfg.Shards == nil {
		return nil, ErrNoShardSource
	}

	points, err := s.cfg.Shards(req.Rank)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return &fetchShardResponse{}, nil
	}

	frame, err := encodePoints(points, s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &fetchShardResponse{Points: frame}, nil
}

func (s *Server) reduceAggregates(ctx context.Context, req *reduceRequest) (*reduceResponse, error) {
	if err := s.checkJoined(req.Rank, req.Token); err != nil {
		return nil, err
	}
	if req.Rank == transport.Root {
		return nil, fmt.Errorf("%w: rank %d is served in-process", transport.ErrDuplicateContribution, req.Rank)
	}

	fp, err := codec.UnmarshalPoints(req.Sums)
	if err != nil {
		return nil, err
	}
	local, err := aggregate.SetFromWire(fp, req.Counts)
	if err != nil {
		return nil, err
	}

	combined, err := s.reduce.Contribute(ctx, req.Seq, req.Rank, local)
	if err != nil {
		return nil, err
	}

	sums, counts, err := combined.Flatten()
	if err != nil {
		return nil, err
	}
	frame, err := codec.MarshalPoints(sums, s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &reduceResponse{Sums: frame, Counts: counts}, nil
}

func (s *Server) broadcast(ctx context.Context, req *broadcastRequest) (*broadcastResponse, error) {
	if err := s.checkJoined(req.Rank, req.Token); err != nil {
		return nil, err
	}
	if req.Rank == transport.Root {
		return nil, fmt.Errorf("%w: rank %d is served in-process", transport.ErrDuplicateContribution, req.Rank)
	}

	centroids, err := s.bcast.Contribute(ctx, req.Seq, req.Rank, nil)
	if err != nil {
		return nil, err
	}

	frame, err := encodePoints(centroids, s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &broadcastResponse{Centroids: frame}, nil
}

func (s *Server) pushTrace(ctx context.Context, req *pushTraceRequest) (*pushTraceResponse, error) {
	if err := s.checkJoined(req.Rank, req.Token); err != nil {
		return nil, err
	}
	if s.cfg.Traces != nil && len(req.Events) > 0 {
		if err := s.cfg.Traces.PushEvents(ctx, req.Rank, req.Events); err != nil {
			return nil, err
		}
	}
	return &pushTraceResponse{}, nil
}

func (s *Server) leave(ctx context.Context, req *leaveRequest) (*leaveResponse, error) {
	if err := s.checkJoined(req.Rank, req.Token); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.left.CheckedAdd(uint32(req.Rank)) && int(s.left.GetCardinality()) == s.cfg.Size {
		close(s.allLeft)
	}
	s.mu.Unlock()

	s.cfg.Logger.InfoContext(ctx, "worker left", "rank", req.Rank)
	return &leaveResponse{}, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*collectiveServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Join", MethodJoin, (*Server).join),
		unary("FetchShard", MethodFetch, (*Server).fetchShard),
		unary("Reduce", MethodReduce, (*Server).reduceAggregates),
		unary("Broadcast", MethodBroadcast, (*Server).broadcast),
		unary("PushTrace", MethodPushTrace, (*Server).pushTrace),
		unary("Leave", MethodLeave, (*Server).leave),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dkmeans/v1/collective",
}

// unary builds a method descriptor that decodes Req, runs call through the
// interceptor chain and maps its error to a status.
func unary[Req, Resp any](name, fullMethod string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			s := srv.(*Server)
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(s, ctx, req.(*Req))
				if err != nil {
					return nil, mapError(err)
				}
				return resp, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// rootTransport is rank 0's in-process handle on the server's rounds.
type rootTransport struct {
	s         *Server
	reduceSeq uint64
	bcastSeq  uint64
	closed    atomic.Bool
}

var _ transport.Transport = (*rootTransport)(nil)

func (t *rootTransport) Rank() int { return transport.Root }
func (t *rootTransport) Size() int { return t.s.cfg.Size }

func (t *rootTransport) ReduceAggregates(ctx context.Context, local aggregate.Set) (aggregate.Set, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}

	seq := t.reduceSeq
	t.reduceSeq++

	combined, err := t.s.reduce.Contribute(ctx, seq, transport.Root, local.Clone())
	if err != nil {
		return nil, err
	}
	return combined.Clone(), nil
}

func (t *rootTransport) BroadcastCentroids(ctx context.Context, centroids []point.Point) ([]point.Point, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}

	seq := t.bcastSeq
	t.bcastSeq++

	out, err := t.s.bcast.Contribute(ctx, seq, transport.Root, transport.ClonePoints(centroids))
	if err != nil {
		return nil, err
	}
	return transport.ClonePoints(out), nil
}

func (t *rootTransport) Close() error {
	t.closed.Store(true)
	return nil
}
