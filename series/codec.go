package series

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	// magic identifies series files ("ZSER").
	magic = 0x5a534552

	// formatVersion is bumped on incompatible layout changes.
	formatVersion = 1

	// headerSize covers magic through checksum; the validity bitmap and the
	// compressed matrix blocks follow.
	headerSize = 4 + 1 + 1 + 2 + 8 + 8 + 8 + 4 + 4 + 4 + 4
)

var (
	// ErrBadMagic is returned for files that are not series kernels.
	ErrBadMagic = errors.New("series: bad magic")

	// ErrBadVersion is returned for an unsupported format version.
	ErrBadVersion = errors.New("series: unsupported format version")

	// ErrCorrupt is returned when the payload fails structural or checksum
	// validation.
	ErrCorrupt = errors.New("series: corrupt payload")
)

// Marshal encodes the series with the given block compression. The layout is
//
//	[magic:4][version:1][compression:1][pad:2]
//	[start_jd:f64][step_jd:f64][catalog_hash:u64]
//	[step_count:u32][body_count:u32][bitmap_len:u32][matrix_crc:u32]
//	[bitmap][blocks...]
//
// all little-endian. The CRC covers the uncompressed matrix bytes.
func Marshal(s *Series, c Compression) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("series: unknown compression %d", c)
	}

	raw := make([]byte, 4*len(s.lons))
	for i, v := range s.lons {
		binary.LittleEndian.PutUint32(raw[i*4:], v)
	}

	bitmap, err := s.valid.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("series: bitmap: %w", err)
	}

	block, err := compressBlock(raw, c)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize, headerSize+len(bitmap)+len(block))
	binary.LittleEndian.PutUint32(buf[0:], magic)
	buf[4] = formatVersion
	buf[5] = byte(c)
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(s.Header.StartJD))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(s.Header.StepJD))
	binary.LittleEndian.PutUint64(buf[24:], s.Header.CatalogHash)
	binary.LittleEndian.PutUint32(buf[32:], uint32(s.Header.StepCount))
	binary.LittleEndian.PutUint32(buf[36:], uint32(s.Header.BodyCount))
	binary.LittleEndian.PutUint32(buf[40:], uint32(len(bitmap)))
	binary.LittleEndian.PutUint32(buf[44:], crc32.ChecksumIEEE(raw))

	buf = append(buf, bitmap...)
	buf = append(buf, block...)
	return buf, nil
}

// Unmarshal decodes a series produced by Marshal, verifying structure and the
// matrix checksum.
func Unmarshal(data []byte) (*Series, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrCorrupt, len(data), headerSize)
	}
	if binary.LittleEndian.Uint32(data[0:]) != magic {
		return nil, ErrBadMagic
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[4])
	}

	c := Compression(data[5])
	if !c.Valid() {
		return nil, fmt.Errorf("%w: compression %d", ErrCorrupt, data[5])
	}

	h := Header{
		StartJD:     math.Float64frombits(binary.LittleEndian.Uint64(data[8:])),
		StepJD:      math.Float64frombits(binary.LittleEndian.Uint64(data[16:])),
		CatalogHash: binary.LittleEndian.Uint64(data[24:]),
		StepCount:   int(binary.LittleEndian.Uint32(data[32:])),
		BodyCount:   int(binary.LittleEndian.Uint32(data[36:])),
	}
	bitmapLen := int(binary.LittleEndian.Uint32(data[40:]))
	wantCRC := binary.LittleEndian.Uint32(data[44:])

	if len(data) < headerSize+bitmapLen {
		return nil, fmt.Errorf("%w: truncated bitmap", ErrCorrupt)
	}

	valid := roaringFromBytes(data[headerSize : headerSize+bitmapLen])
	if valid == nil {
		return nil, fmt.Errorf("%w: unreadable bitmap", ErrCorrupt)
	}

	raw, err := decompressBlock(data[headerSize+bitmapLen:], c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if crc32.ChecksumIEEE(raw) != wantCRC {
		return nil, fmt.Errorf("%w: matrix checksum mismatch", ErrCorrupt)
	}
	if len(raw) != 4*h.StepCount*h.BodyCount {
		return nil, fmt.Errorf("%w: %d matrix bytes for %dx%d", ErrCorrupt, len(raw), h.StepCount, h.BodyCount)
	}

	lons := make([]uint32, h.StepCount*h.BodyCount)
	for i := range lons {
		lons[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	return New(h, lons, valid)
}

func roaringFromBytes(data []byte) *roaring.Bitmap {
	rb := roaring.New()
	if _, err := rb.FromBuffer(data); err != nil {
		return nil
	}
	// FromBuffer aliases the input; clone so the series owns its bitmap.
	return rb.Clone()
}
