package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/hupe1980/dkmeans/point"
)

// Point frame layout (little-endian):
//
//	[magic u32][version u8][compression u8][dims u64][count u64][payloadLen u32][crc32 u32][payload]
//
// The payload is dims*count float64 values, row-major, optionally compressed.
// The checksum covers the header fields before it and the stored payload.
const (
	frameMagic      uint32 = 0x504d4b44 // "DKMP"
	frameVersion    uint8  = 1
	frameHeaderSize        = 4 + 1 + 1 + 8 + 8 + 4 + 4

	// MaxFramePayload bounds the raw payload a frame may declare.
	MaxFramePayload = 1 << 31
)

var (
	ErrInvalidMagic       = errors.New("invalid point frame magic")
	ErrUnsupportedVersion = errors.New("unsupported point frame version")
	ErrInvalidChecksum    = errors.New("invalid point frame checksum")
	ErrFrameTooLarge      = errors.New("point frame too large")
)

// EncodePoints writes fp as one frame to w.
func EncodePoints(w io.Writer, fp point.FlattenedPoints, c Compression) error {
	if err := fp.Validate(); err != nil {
		return err
	}
	if uint64(len(fp.Data))*8 > MaxFramePayload {
		return ErrFrameTooLarge
	}

	raw := make([]byte, len(fp.Data)*8)
	for i, v := range fp.Data {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}

	payload, used, err := compress(raw, c)
	if err != nil {
		return fmt.Errorf("compress points: %w", err)
	}

	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], frameMagic)
	header[4] = frameVersion
	header[5] = byte(used)
	binary.LittleEndian.PutUint64(header[6:], fp.DimensionsPerPoint)
	binary.LittleEndian.PutUint64(header[14:], fp.PointCount)
	binary.LittleEndian.PutUint32(header[22:], uint32(len(payload)))

	crc := crc32.NewIEEE()
	crc.Write(header[:26])
	crc.Write(payload)
	binary.LittleEndian.PutUint32(header[26:], crc.Sum32())

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// DecodePoints reads one frame from r.
func DecodePoints(r io.Reader) (point.FlattenedPoints, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return point.FlattenedPoints{}, fmt.Errorf("read point frame header: %w", err)
	}

	if binary.LittleEndian.Uint32(header[0:]) != frameMagic {
		return point.FlattenedPoints{}, ErrInvalidMagic
	}
	if header[4] != frameVersion {
		return point.FlattenedPoints{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header[4])
	}

	c := Compression(header[5])
	dims := binary.LittleEndian.Uint64(header[6:])
	count := binary.LittleEndian.Uint64(header[14:])
	payloadLen := binary.LittleEndian.Uint32(header[22:])
	checksum := binary.LittleEndian.Uint32(header[26:])

	if dims == 0 && count != 0 {
		return point.FlattenedPoints{}, fmt.Errorf("point frame declares %d points: %w", count, point.ErrZeroDimension)
	}
	if dims != 0 && count > MaxFramePayload/8/dims {
		return point.FlattenedPoints{}, ErrFrameTooLarge
	}
	rawSize := int(dims * count * 8)
	if uint64(payloadLen) > MaxFramePayload {
		return point.FlattenedPoints{}, ErrFrameTooLarge
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return point.FlattenedPoints{}, fmt.Errorf("read point frame payload: %w", err)
	}

	crc := crc32.NewIEEE()
	crc.Write(header[:26])
	crc.Write(payload)
	if crc.Sum32() != checksum {
		return point.FlattenedPoints{}, ErrInvalidChecksum
	}

	raw, err := decompress(payload, c, rawSize)
	if err != nil {
		return point.FlattenedPoints{}, fmt.Errorf("decompress points: %w", err)
	}

	data := make([]float64, len(raw)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}

	fp := point.FlattenedPoints{DimensionsPerPoint: dims, PointCount: count, Data: data}
	if err := fp.Validate(); err != nil {
		return point.FlattenedPoints{}, err
	}
	return fp, nil
}

// MarshalPoints encodes fp into a new byte slice.
func MarshalPoints(fp point.FlattenedPoints, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePoints(&buf, fp, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalPoints decodes a frame produced by MarshalPoints.
func UnmarshalPoints(data []byte) (point.FlattenedPoints, error) {
	return DecodePoints(bytes.NewReader(data))
}
