package grpctransport

import (
	"context"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/instrument"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/transport"
)

// Client is a remote rank's handle on a group served by a Server.
//
// Sequence numbers advance per call, so a Client must be used by a single
// goroutine at a time. PushEvents may be called concurrently.
type Client struct {
	conn      *grpc.ClientConn
	ownsConn  bool
	rank      int
	token     string
	size      int
	comp      codec.Compression
	settings  []byte
	reduceSeq uint64
	bcastSeq  uint64
	closed    atomic.Bool
}

var (
	_ transport.Transport = (*Client)(nil)
	_ instrument.Sink     = (*Client)(nil)
)

// Dial connects to the coordinator at target and joins the group. Without
// dial options the connection is insecure.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.MaxCallRecvMsgSize(maxMessageSize),
		grpc.MaxCallSendMsgSize(maxMessageSize),
	))

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	c, err := Join(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.ownsConn = true
	return c, nil
}

// Join joins the group over an existing connection. The connection stays
// owned by the caller.
func Join(ctx context.Context, conn *grpc.ClientConn) (*Client, error) {
	c := &Client{conn: conn}

	var resp joinResponse
	if err := c.invoke(ctx, MethodJoin, &joinRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}

	comp, err := codec.ParseCompression(resp.Compression)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}

	c.rank = resp.Rank
	c.token = resp.Token
	c.size = resp.Size
	c.comp = comp
	c.settings = resp.Settings
	return c, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	err := c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return clientError(ctx, err)
	}
	return nil
}

func (c *Client) Rank() int { return c.rank }
func (c *Client) Size() int { return c.size }

// Settings returns the opaque run settings the coordinator handed out.
func (c *Client) Settings() []byte { return c.settings }

// FetchShard downloads the points owned by this rank.
func (c *Client) FetchShard(ctx context.Context) ([]point.Point, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}

	var resp fetchShardResponse
	if err := c.invoke(ctx, MethodFetch, &fetchShardRequest{Rank: c.rank, Token: c.token}, &resp); err != nil {
		return nil, fmt.Errorf("fetch shard: %w", err)
	}
	if len(resp.Points) == 0 {
		return nil, nil
	}

	points, err := decodePoints(resp.Points)
	if err != nil {
		return nil, fmt.Errorf("fetch shard: %w", err)
	}
	return points, nil
}

func (c *Client) ReduceAggregates(ctx context.Context, local aggregate.Set) (aggregate.Set, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}

	sums, counts, err := local.Flatten()
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}
	frame, err := codec.MarshalPoints(sums, c.comp)
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	seq := c.reduceSeq
	c.reduceSeq++

	var resp reduceResponse
	req := &reduceRequest{Rank: c.rank, Token: c.token, Seq: seq, Sums: frame, Counts: counts}
	if err := c.invoke(ctx, MethodReduce, req, &resp); err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	fp, err := codec.UnmarshalPoints(resp.Sums)
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}
	return aggregate.SetFromWire(fp, resp.Counts)
}

// BroadcastCentroids returns the root's centroids. The argument is ignored;
// only the coordinator contributes to a broadcast.
func (c *Client) BroadcastCentroids(ctx context.Context, _ []point.Point) ([]point.Point, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}

	seq := c.bcastSeq
	c.bcastSeq++

	var resp broadcastResponse
	if err := c.invoke(ctx, MethodBroadcast, &broadcastRequest{Rank: c.rank, Token: c.token, Seq: seq}, &resp); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	centroids, err := decodePoints(resp.Centroids)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	return centroids, nil
}

// PushEvents sends trace events to the coordinator. rank is ignored; events
// are attributed to this client's rank.
func (c *Client) PushEvents(ctx context.Context, _ int, events []instrument.Event) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	if len(events) == 0 {
		return nil
	}

	var resp pushTraceResponse
	if err := c.invoke(ctx, MethodPushTrace, &pushTraceRequest{Rank: c.rank, Token: c.token, Events: events}, &resp); err != nil {
		return fmt.Errorf("push trace: %w", err)
	}
	return nil
}

// Leave tells the coordinator this rank is done. Close calls it.
func (c *Client) Leave(ctx context.Context) error {
	var resp leaveResponse
	if err := c.invoke(ctx, MethodLeave, &leaveRequest{Rank: c.rank, Token: c.token}, &resp); err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	return nil
}

// Close leaves the group and closes the connection if Dial opened it.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	err := c.Leave(ctx)
	if c.ownsConn {
		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
