package series

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression applied to the longitude matrix.
type Compression uint8

const (
	// CompressionNone stores the matrix verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 favors decode speed over ratio.
	CompressionLZ4 Compression = 1
	// CompressionZSTD favors ratio; a good fit for archived series.
	CompressionZSTD Compression = 2
)

// ParseCompression maps a config string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("series: unknown compression %q", s)
	}
}

func (c Compression) Valid() bool { return c <= CompressionZSTD }

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) { zstdEncoderPool.Put(enc) }

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) { zstdDecoderPool.Put(dec) }

// Block format: [uncompressedSize uint32][compressedSize uint32][data].
// compressedSize == 0 marks a block stored verbatim.
const blockHeaderSize = 8

// compressBlock wraps data in a block, compressing it when that actually
// shrinks it. Incompressible blocks fall back to verbatim storage.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionNone:
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		buf := make([]byte, bound)
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("series: lz4: %w", err)
		}
		compressed = buf[:n] // n == 0 means incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)
		compressed = enc.EncodeAll(data, nil)
	default:
		return nil, fmt.Errorf("series: unknown compression %d", c)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// decompressBlock reverses compressBlock.
func decompressBlock(data []byte, c Compression) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, errors.New("series: block too small for header")
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if compressedSize == 0 {
		if uint32(len(data)) != blockHeaderSize+uncompressedSize {
			return nil, errors.New("series: verbatim block length mismatch")
		}
		return data[blockHeaderSize:], nil
	}

	if uint32(len(data)) != blockHeaderSize+compressedSize {
		return nil, errors.New("series: compressed block length mismatch")
	}
	payload := data[blockHeaderSize:]
	out := make([]byte, uncompressedSize)

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("series: lz4: %w", err)
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("series: decompressed size mismatch")
		}
		return out, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		decoded, err := dec.DecodeAll(payload, out[:0])
		if err != nil {
			return nil, fmt.Errorf("series: zstd: %w", err)
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, errors.New("series: decompressed size mismatch")
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("series: compressed block under compression %q", c)
	}
}
