package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/hrygo/saga/internal/errors"
)

// Blob layout, all integers little-endian:
//
//	offset 0  u8   envelope version (1)
//	offset 1  u8   float width in bytes (4)
//	offset 2  u32  component count
//	offset 6  ...  components as IEEE-754 float32
const (
	EnvelopeVersion = 1
	FloatWidth      = 4
	headerSize      = 6
)

// DefaultDimensions is the component count of the reference embedding model.
const DefaultDimensions = 384

// ToBlob packs v into a self-describing envelope. Packing is lossless.
func ToBlob(v []float32) []byte {
	buf := make([]byte, headerSize+len(v)*FloatWidth)
	buf[0] = EnvelopeVersion
	buf[1] = FloatWidth
	binary.LittleEndian.PutUint32(buf[2:headerSize], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[headerSize+i*FloatWidth:], math.Float32bits(f))
	}
	return buf
}

// FromBlob unpacks an envelope holding exactly dims components.
// Any header or length mismatch is a DecodingError; nothing is truncated or padded.
func FromBlob(blob []byte, dims int) ([]float32, error) {
	if len(blob) < headerSize {
		return nil, apperrors.Decoding(fmt.Sprintf("blob too short: %d bytes", len(blob)))
	}
	if blob[0] != EnvelopeVersion {
		return nil, apperrors.Decoding(fmt.Sprintf("unsupported envelope version %d", blob[0]))
	}
	if blob[1] != FloatWidth {
		return nil, apperrors.Decoding(fmt.Sprintf("unsupported float width %d", blob[1]))
	}
	count := binary.LittleEndian.Uint32(blob[2:headerSize])
	if int64(count) != int64(dims) {
		return nil, apperrors.Decoding(fmt.Sprintf("dimension mismatch: blob has %d, want %d", count, dims))
	}
	payload := blob[headerSize:]
	if len(payload)%FloatWidth != 0 || len(payload)/FloatWidth != dims {
		return nil, apperrors.Decoding(fmt.Sprintf("payload of %d bytes does not hold %d components", len(payload), dims))
	}

	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*FloatWidth:]))
	}
	return v, nil
}
