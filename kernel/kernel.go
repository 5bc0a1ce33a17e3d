// Package kernel models the in-memory form of a position kernel: a header
// describing the base epoch plus one quantized record per catalog body, in
// catalog order. Kernels are built once and never mutated; a new kernel
// supersedes an old one.
package kernel

import (
	"github.com/zenithlab/zenith/codec"
)

// Geo is an optional observer location for topocentric kernels.
type Geo struct {
	Lat float64
	Lon float64
}

// Header carries the kernel-wide metadata persisted ahead of the records.
type Header struct {
	// Tier declares the time resolution the kernel's claims are valid
	// for and fixes the per-body record width.
	Tier codec.Tier

	// TZOffsetSec is the timezone offset the kernel was built for, in
	// seconds east of UTC.
	TZOffsetSec int32

	// BaseEpoch is the Julian Day the records were sampled at.
	BaseEpoch float64

	// CatalogHash identifies the catalog the records were written
	// against. Readers must reject a kernel whose hash does not match
	// their catalog.
	CatalogHash uint64

	// Location, when non-nil, marks a topocentric kernel.
	Location *Geo
}

// Record is one body's quantized state. Speed is meaningful only for
// tiers whose records carry it.
type Record struct {
	Longitude uint32
	Speed     uint16
}

// Kernel is a header plus records in catalog order.
type Kernel struct {
	Header  Header
	Records []Record
}

// Longitude decodes record i's angle in degrees.
func (k *Kernel) Longitude(i int) float64 {
	return codec.DecodeAngle(k.Records[i].Longitude)
}

// Len returns the record count.
func (k *Kernel) Len() int { return len(k.Records) }
