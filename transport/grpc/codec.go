package grpctransport

import (
	"google.golang.org/grpc/encoding"

	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/point"
)

// CodecName is the gRPC content-subtype of collective messages.
const CodecName = "dkmeans-json"

// wireCodec encodes envelopes with codec.Default. It is selected per call by
// content-subtype, so protobuf services on the same server (health) keep
// their own codec.
type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error)      { return codec.Default.Marshal(v) }
func (wireCodec) Unmarshal(data []byte, v any) error { return codec.Default.Unmarshal(data, v) }
func (wireCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(wireCodec{})
}

func encodePoints(points []point.Point, c codec.Compression) ([]byte, error) {
	fp, err := point.Flatten(points)
	if err != nil {
		return nil, err
	}
	return codec.MarshalPoints(fp, c)
}

func decodePoints(frame []byte) ([]point.Point, error) {
	fp, err := codec.UnmarshalPoints(frame)
	if err != nil {
		return nil, err
	}
	return point.Unflatten(fp)
}
