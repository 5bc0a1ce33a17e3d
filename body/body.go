// Package body defines the ordered catalog of tracked celestial bodies.
//
// Catalog order is significant: kernels store no body names, only records
// in catalog order, so the catalog acts as the implicit schema. Readers
// validate compatibility via Catalog.Hash, which is persisted in every
// kernel header.
package body

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
)

// Oracle identifiers of the reference catalog. The planetary numbers follow
// the ephemeris convention the position oracle expects; AsteroidOffset is
// the base of the numbered-asteroid identifier family used for fallback
// lookups.
const (
	IDSun       = 0
	IDMoon      = 1
	IDMercury   = 2
	IDVenus     = 3
	IDMars      = 4
	IDJupiter   = 5
	IDSaturn    = 6
	IDUranus    = 7
	IDNeptune   = 8
	IDPluto     = 9
	IDTrueNode  = 11
	IDMeanApog  = 12
	IDChiron    = 15
	IDCeres     = 17
	IDPallas    = 18
	IDJuno      = 19
	IDVesta     = 20
	IDAscendant = 9001
	IDARMC      = 9002

	AsteroidOffset = 10000
)

var (
	// ErrInvalidMaxSpeed is returned when a catalog entry declares a
	// non-positive maximum speed. Speed quantization divides by MaxSpeed,
	// so a zero entry must be rejected here, not at encode time.
	ErrInvalidMaxSpeed = errors.New("body: max speed must be positive")

	// ErrDuplicateID is returned when two catalog entries share an oracle
	// identifier.
	ErrDuplicateID = errors.New("body: duplicate oracle identifier")

	// ErrEmptyCatalog is returned for a catalog with no entries.
	ErrEmptyCatalog = errors.New("body: empty catalog")
)

// Body is one tracked catalog entry.
type Body struct {
	// ID is the opaque identifier passed to the position oracle.
	ID int

	// FallbackID is an alternate identifier (typically in the numbered
	// asteroid family) tried once when the primary lookup fails.
	// Only consulted when SupportsFallback is set.
	FallbackID int

	// SupportsFallback marks bodies that have a meaningful FallbackID.
	SupportsFallback bool

	// MaxSpeed is the largest known angular speed magnitude in deg/day.
	// It bounds the affine speed quantization range.
	MaxSpeed float64

	// Name and Symbol are display-only and never persisted.
	Name   string
	Symbol string
}

// Catalog is an ordered list of bodies. The order is the implicit record
// key of every kernel built from it.
type Catalog []Body

// Default returns the reference 20-body catalog: the ten classical planets,
// Chiron, the lunar points, the four main asteroids, the chart angles, and
// one numbered asteroid.
func Default() Catalog {
	return Catalog{
		{ID: IDSun, Name: "Sun", Symbol: "☉", MaxSpeed: 1.03},
		{ID: IDMoon, Name: "Moon", Symbol: "☽", MaxSpeed: 15.5},
		{ID: IDMercury, Name: "Mercury", Symbol: "☿", MaxSpeed: 2.25},
		{ID: IDVenus, Name: "Venus", Symbol: "♀", MaxSpeed: 1.30},
		{ID: IDMars, Name: "Mars", Symbol: "♂", MaxSpeed: 0.85},
		{ID: IDJupiter, Name: "Jupiter", Symbol: "♃", MaxSpeed: 0.25},
		{ID: IDSaturn, Name: "Saturn", Symbol: "♄", MaxSpeed: 0.14},
		{ID: IDUranus, Name: "Uranus", Symbol: "♅", MaxSpeed: 0.07},
		{ID: IDNeptune, Name: "Neptune", Symbol: "♆", MaxSpeed: 0.05},
		{ID: IDPluto, Name: "Pluto", Symbol: "⯓", MaxSpeed: 0.05},
		{ID: IDChiron, Name: "Chiron", Symbol: "⚷", MaxSpeed: 0.20, FallbackID: AsteroidOffset + 2060, SupportsFallback: true},
		{ID: IDTrueNode, Name: "True Node", Symbol: "☊", MaxSpeed: 0.30},
		{ID: IDMeanApog, Name: "Mean Apogee", Symbol: "⚸", MaxSpeed: 0.12},
		{ID: IDVesta, Name: "Vesta", Symbol: "⚴", MaxSpeed: 0.60, FallbackID: AsteroidOffset + 4, SupportsFallback: true},
		{ID: IDJuno, Name: "Juno", Symbol: "⚵", MaxSpeed: 0.55, FallbackID: AsteroidOffset + 3, SupportsFallback: true},
		{ID: IDCeres, Name: "Ceres", Symbol: "⚳", MaxSpeed: 0.55, FallbackID: AsteroidOffset + 1, SupportsFallback: true},
		{ID: IDPallas, Name: "Pallas", Symbol: "⚴", MaxSpeed: 0.60, FallbackID: AsteroidOffset + 2, SupportsFallback: true},
		{ID: IDAscendant, Name: "Ascendant", Symbol: "Asc", MaxSpeed: 450.0},
		{ID: IDARMC, Name: "ARMC", Symbol: "MC", MaxSpeed: 365.0},
		{ID: AsteroidOffset + 5550, Name: "15550", Symbol: "☄", MaxSpeed: 0.60},
	}
}

// Validate checks the catalog invariants: non-empty, positive max speeds,
// finite max speeds, and unique oracle identifiers.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[int]int, len(c))
	for i, b := range c {
		if b.MaxSpeed <= 0 || math.IsInf(b.MaxSpeed, 0) || math.IsNaN(b.MaxSpeed) {
			return fmt.Errorf("%w: body %d (%s) has max speed %v", ErrInvalidMaxSpeed, i, b.Name, b.MaxSpeed)
		}
		if prev, ok := seen[b.ID]; ok {
			return fmt.Errorf("%w: %d used by bodies %d and %d", ErrDuplicateID, b.ID, prev, i)
		}
		seen[b.ID] = i
	}
	return nil
}

// Hash returns an FNV-1a digest over the identity and quantization-relevant
// fields of each entry, in order. Two catalogs with the same hash produce
// byte-compatible kernels; the hash is persisted in kernel headers so a
// reader can reject records written against a different catalog.
func (c Catalog) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, b := range c {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(b.ID)))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(b.FallbackID)))
		h.Write(buf[:])
		if b.SupportsFallback {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(b.MaxSpeed))
		h.Write(buf[:])
	}
	return h.Sum64()
}
