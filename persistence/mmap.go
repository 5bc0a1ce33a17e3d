package persistence

import (
	"encoding/binary"
	"fmt"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/internal/mmap"
	"github.com/zenithlab/zenith/kernel"
)

// MappedKernel is a read-only kernel backed by a memory-mapped file. Records
// are decoded lazily from the mapping, so opening a kernel does not copy the
// record section into the heap.
type MappedKernel struct {
	file    *mmap.File
	header  kernel.Header
	recOff  int
	recSize int
	count   int
}

// OpenMapped maps the kernel file at path and validates it against the
// catalog. The mapping stays live until Close is called.
func OpenMapped(path string, catalog body.Catalog) (*MappedKernel, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}

	f, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: mmap %s: %w", path, err)
	}

	mk, err := newMapped(f, catalog)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: %s: %w", path, err)
	}
	return mk, nil
}

func newMapped(f *mmap.File, catalog body.Catalog) (*MappedKernel, error) {
	data := f.Bytes()

	h, off, err := unmarshalHeader(data)
	if err != nil {
		return nil, err
	}

	recSize := h.Tier.RecordSize()
	if want := off + len(catalog)*recSize; len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes, expected %d for a %d-body catalog",
			ErrFormatMismatch, len(data), want, len(catalog))
	}
	if h.CatalogHash != catalog.Hash() {
		return nil, fmt.Errorf("%w: kernel 0x%016x, catalog 0x%016x",
			ErrCatalogMismatch, h.CatalogHash, catalog.Hash())
	}

	return &MappedKernel{
		file:    f,
		header:  h,
		recOff:  off,
		recSize: recSize,
		count:   len(catalog),
	}, nil
}

// Header returns the decoded kernel header.
func (mk *MappedKernel) Header() kernel.Header { return mk.header }

// Len returns the number of records.
func (mk *MappedKernel) Len() int { return mk.count }

// RecordAt decodes the record at catalog index i straight from the mapping.
func (mk *MappedKernel) RecordAt(i int) (kernel.Record, error) {
	if i < 0 || i >= mk.count {
		return kernel.Record{}, fmt.Errorf("persistence: record index %d out of range [0,%d)", i, mk.count)
	}

	off := mk.recOff + i*mk.recSize
	data := mk.file.Bytes()

	rec := kernel.Record{Longitude: binary.LittleEndian.Uint32(data[off:])}
	if mk.header.Tier.HasSpeed() {
		rec.Speed = binary.LittleEndian.Uint16(data[off+codec.AngleBytes:])
	}
	return rec, nil
}

// LongitudeAt decodes the longitude at catalog index i in degrees.
func (mk *MappedKernel) LongitudeAt(i int) (float64, error) {
	rec, err := mk.RecordAt(i)
	if err != nil {
		return 0, err
	}
	return codec.DecodeAngle(rec.Longitude), nil
}

// Kernel copies the mapped records into a heap-backed kernel. Useful when the
// caller wants to close the mapping but keep the data.
func (mk *MappedKernel) Kernel() *kernel.Kernel {
	records := make([]kernel.Record, mk.count)
	for i := range records {
		records[i], _ = mk.RecordAt(i)
	}
	return &kernel.Kernel{Header: mk.header, Records: records}
}

// Close unmaps the file. The MappedKernel must not be used afterwards.
func (mk *MappedKernel) Close() error {
	return mk.file.Close()
}
