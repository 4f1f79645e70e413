package grpctransport

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hupe1980/dkmeans/aggregate"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/point"
	"github.com/hupe1980/dkmeans/transport"
)

var (
	// ErrGroupFull is returned by Join when every rank is taken.
	ErrGroupFull = errors.New("worker group is full")

	// ErrNotJoined is returned for calls from a rank that never joined.
	ErrNotJoined = errors.New("rank has not joined")

	// ErrRankToken is returned for calls whose token was not issued to the
	// rank they claim.
	ErrRankToken = errors.New("token does not match rank")

	// ErrNoShardSource is returned by FetchShard on a server without shards.
	ErrNoShardSource = errors.New("no shard source configured")
)

// mapError translates collective errors to gRPC status codes.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var rr *transport.ErrRankOutOfRange
	var dm *point.ErrDimensionMismatch
	var sm *point.ErrSizeMismatch

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, transport.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrGroupFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrRankToken):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrNotJoined),
		errors.Is(err, ErrNoShardSource),
		errors.Is(err, transport.ErrDuplicateContribution):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &rr),
		errors.As(err, &dm),
		errors.As(err, &sm),
		errors.Is(err, aggregate.ErrCardinalityMismatch),
		errors.Is(err, point.ErrEmptyInput),
		errors.Is(err, point.ErrZeroDimension),
		errors.Is(err, codec.ErrInvalidMagic),
		errors.Is(err, codec.ErrInvalidChecksum),
		errors.Is(err, codec.ErrUnsupportedVersion),
		errors.Is(err, codec.ErrFrameTooLarge),
		errors.Is(err, codec.ErrUnknownCompression):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// clientError turns a failed RPC back into the local error the caller can
// match on.
func clientError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch status.Code(err) {
	case codes.Unavailable:
		return errors.Join(transport.ErrClosed, err)
	case codes.ResourceExhausted:
		return errors.Join(ErrGroupFull, err)
	}
	return err
}

// RecoveryUnaryInterceptor returns a unary interceptor that recovers from panics.
func RecoveryUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "panic in handler",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingUnaryInterceptor returns a unary interceptor that logs each RPC call.
func LoggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level := slog.LevelDebug
		if code != codes.OK {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc call",
			"method", info.FullMethod,
			"code", code.String(),
			"elapsed", time.Since(start),
		)
		return resp, err
	}
}

// ServerOptions returns the interceptor chain for a collective server.
func ServerOptions(logger *slog.Logger) []grpc.ServerOption {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.ChainUnaryInterceptor(
			RecoveryUnaryInterceptor(logger),
			LoggingUnaryInterceptor(logger),
		),
	}
}

// maxMessageSize bounds envelopes; shards are the largest messages.
const maxMessageSize = 256 << 20
