// Package persistence implements the on-disk kernel format: a fixed-layout
// little-endian binary with a one-byte tag, followed by the header fields and
// the densely packed position records.
//
// Layout:
//
//	[tag:1][tz_offset:int32][base_epoch:float64][catalog_hash:uint64][geo:16?][records...]
//
// The geo block (latitude and longitude as float64) is present only when the
// tag's topocentric bit is set. Record size depends on the precision tier:
// 4 bytes (longitude only) for day kernels, 6 bytes (longitude + speed) for
// minute and second kernels.
package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/kernel"
)

const (
	// FormatVersion is stored in the high nibble of the tag byte.
	FormatVersion = 1

	// HeaderSize is the fixed part of the header: tag, timezone offset,
	// base epoch and catalog hash.
	HeaderSize = 1 + 4 + 8 + 8

	// GeoSize is the optional topocentric block: two float64 coordinates.
	GeoSize = 16

	tierMask        = 0x03
	topocentricFlag = 0x04
	versionShift    = 4
)

var (
	// ErrFormatMismatch is returned when the payload length does not match
	// the length implied by the header, or the header itself is malformed.
	ErrFormatMismatch = errors.New("kernel format mismatch")

	// ErrInvalidVersion is returned for tag bytes with an unknown version nibble.
	ErrInvalidVersion = errors.New("unsupported kernel format version")

	// ErrCatalogMismatch is returned when the persisted catalog hash differs
	// from the catalog the reader was configured with.
	ErrCatalogMismatch = errors.New("kernel catalog hash mismatch")
)

// encodeTag packs version, tier and the topocentric flag into the tag byte.
func encodeTag(tier codec.Tier, topocentric bool) byte {
	tag := byte(FormatVersion<<versionShift) | byte(tier)&tierMask
	if topocentric {
		tag |= topocentricFlag
	}
	return tag
}

// decodeTag splits the tag byte back into its components.
func decodeTag(tag byte) (tier codec.Tier, topocentric bool, err error) {
	if tag>>versionShift != FormatVersion {
		return 0, false, fmt.Errorf("%w: tag 0x%02x", ErrInvalidVersion, tag)
	}

	tier = codec.Tier(tag & tierMask)
	if !tier.Valid() {
		return 0, false, fmt.Errorf("%w: invalid tier in tag 0x%02x", ErrFormatMismatch, tag)
	}

	return tier, tag&topocentricFlag != 0, nil
}

// EncodedSize returns the exact byte length of a kernel with the given header
// and record count.
func EncodedSize(h kernel.Header, records int) int {
	size := HeaderSize + records*h.Tier.RecordSize()
	if h.Location != nil {
		size += GeoSize
	}
	return size
}

// Marshal encodes a kernel into its canonical byte representation.
func Marshal(k *kernel.Kernel) ([]byte, error) {
	if !k.Header.Tier.Valid() {
		return nil, fmt.Errorf("%w: invalid tier %d", ErrFormatMismatch, k.Header.Tier)
	}

	buf := make([]byte, EncodedSize(k.Header, len(k.Records)))

	buf[0] = encodeTag(k.Header.Tier, k.Header.Location != nil)
	binary.LittleEndian.PutUint32(buf[1:], uint32(k.Header.TZOffsetSec))
	binary.LittleEndian.PutUint64(buf[5:], math.Float64bits(k.Header.BaseEpoch))
	binary.LittleEndian.PutUint64(buf[13:], k.Header.CatalogHash)

	off := HeaderSize
	if loc := k.Header.Location; loc != nil {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(loc.Lat))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(loc.Lon))
		off += GeoSize
	}

	withSpeed := k.Header.Tier.HasSpeed()
	for _, rec := range k.Records {
		binary.LittleEndian.PutUint32(buf[off:], rec.Longitude)
		off += codec.AngleBytes
		if withSpeed {
			binary.LittleEndian.PutUint16(buf[off:], rec.Speed)
			off += codec.SpeedBytes
		}
	}

	return buf, nil
}

// Unmarshal decodes a kernel from its canonical byte representation. The
// payload length must match the header exactly: trailing or missing bytes are
// a format mismatch, never silently tolerated.
func Unmarshal(data []byte) (*kernel.Kernel, error) {
	h, off, err := unmarshalHeader(data)
	if err != nil {
		return nil, err
	}

	recSize := h.Tier.RecordSize()
	body := data[off:]
	if len(body)%recSize != 0 {
		return nil, fmt.Errorf("%w: %d payload bytes not a multiple of record size %d",
			ErrFormatMismatch, len(body), recSize)
	}

	withSpeed := h.Tier.HasSpeed()
	records := make([]kernel.Record, len(body)/recSize)
	for i := range records {
		records[i].Longitude = binary.LittleEndian.Uint32(body[i*recSize:])
		if withSpeed {
			records[i].Speed = binary.LittleEndian.Uint16(body[i*recSize+codec.AngleBytes:])
		}
	}

	return &kernel.Kernel{Header: h, Records: records}, nil
}

// unmarshalHeader decodes the header and returns the offset of the first record.
func unmarshalHeader(data []byte) (kernel.Header, int, error) {
	var h kernel.Header

	if len(data) < HeaderSize {
		return h, 0, fmt.Errorf("%w: %d bytes, header needs %d", ErrFormatMismatch, len(data), HeaderSize)
	}

	tier, topocentric, err := decodeTag(data[0])
	if err != nil {
		return h, 0, err
	}

	h.Tier = tier
	h.TZOffsetSec = int32(binary.LittleEndian.Uint32(data[1:]))
	h.BaseEpoch = math.Float64frombits(binary.LittleEndian.Uint64(data[5:]))
	h.CatalogHash = binary.LittleEndian.Uint64(data[13:])

	off := HeaderSize
	if topocentric {
		if len(data) < off+GeoSize {
			return h, 0, fmt.Errorf("%w: truncated topocentric block", ErrFormatMismatch)
		}
		h.Location = &kernel.Geo{
			Lat: math.Float64frombits(binary.LittleEndian.Uint64(data[off:])),
			Lon: math.Float64frombits(binary.LittleEndian.Uint64(data[off+8:])),
		}
		off += GeoSize
	}

	return h, off, nil
}
