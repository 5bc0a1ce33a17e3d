// Package series implements time-series kernels: a dense step-major matrix of
// quantized longitudes sampled at a fixed cadence, expanded back to arbitrary
// instants by Catmull-Rom interpolation on the shortest arc.
package series

import (
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/zenithlab/zenith/codec"
)

var (
	// ErrOutOfRange is returned when the queried instant lies outside the
	// series' time span.
	ErrOutOfRange = errors.New("series: instant outside series range")

	// ErrGap is returned when interpolation would cross a slot whose sample
	// failed at build time.
	ErrGap = errors.New("series: sample gap at queried instant")
)

// Header describes a series: its time span, cadence and the catalog it was
// built for.
type Header struct {
	StartJD     float64
	StepJD      float64
	StepCount   int
	BodyCount   int
	CatalogHash uint64
}

// EndJD returns the instant of the last sample.
func (h Header) EndJD() float64 {
	return h.StartJD + float64(h.StepCount-1)*h.StepJD
}

// Series is a sampled longitude matrix. Storage is step-major: the sample for
// body b at step s sits at index s*BodyCount+b. The validity bitmap marks
// slots whose oracle lookup succeeded; gaps stay zero and are never
// interpolated across.
type Series struct {
	Header Header

	lons  []uint32
	valid *roaring.Bitmap
}

// New wraps a prebuilt matrix. The matrix length must be StepCount*BodyCount.
func New(h Header, lons []uint32, valid *roaring.Bitmap) (*Series, error) {
	if h.StepCount <= 0 || h.BodyCount <= 0 {
		return nil, fmt.Errorf("series: empty dimensions %dx%d", h.StepCount, h.BodyCount)
	}
	if h.StepJD <= 0 || math.IsNaN(h.StepJD) || math.IsInf(h.StepJD, 0) {
		return nil, fmt.Errorf("series: invalid step %v", h.StepJD)
	}
	if len(lons) != h.StepCount*h.BodyCount {
		return nil, fmt.Errorf("series: %d samples for %dx%d matrix", len(lons), h.StepCount, h.BodyCount)
	}
	if valid == nil {
		valid = roaring.New()
		valid.AddRange(0, uint64(len(lons)))
	}
	return &Series{Header: h, lons: lons, valid: valid}, nil
}

func (s *Series) slot(step, body int) uint32 {
	return uint32(step*s.Header.BodyCount + body)
}

// Valid reports whether the sample for body at step succeeded at build time.
func (s *Series) Valid(step, body int) bool {
	return s.valid.Contains(s.slot(step, body))
}

// GapCount returns the number of failed slots.
func (s *Series) GapCount() int {
	return s.Header.StepCount*s.Header.BodyCount - int(s.valid.GetCardinality())
}

// At returns the stored longitude in degrees for body at step.
func (s *Series) At(step, body int) (float64, error) {
	if step < 0 || step >= s.Header.StepCount || body < 0 || body >= s.Header.BodyCount {
		return 0, fmt.Errorf("series: slot (%d,%d) out of range %dx%d",
			step, body, s.Header.StepCount, s.Header.BodyCount)
	}
	if !s.Valid(step, body) {
		return 0, fmt.Errorf("%w: body %d at step %d", ErrGap, body, step)
	}
	return codec.DecodeAngle(s.lons[step*s.Header.BodyCount+body]), nil
}

// Sample interpolates the longitude of body at jd with a Catmull-Rom spline
// over the four surrounding samples. Control points are unwrapped onto a
// continuous arc first, so a body crossing 0° interpolates through 360°, not
// backwards around the circle.
func (s *Series) Sample(jd float64, body int) (float64, error) {
	if body < 0 || body >= s.Header.BodyCount {
		return 0, fmt.Errorf("series: body index %d out of range [0,%d)", body, s.Header.BodyCount)
	}
	if jd < s.Header.StartJD || jd > s.Header.EndJD() {
		return 0, fmt.Errorf("%w: jd %v not in [%v, %v]", ErrOutOfRange, jd, s.Header.StartJD, s.Header.EndJD())
	}

	pos := (jd - s.Header.StartJD) / s.Header.StepJD
	i := int(math.Floor(pos))
	if i >= s.Header.StepCount-1 {
		// Exactly at the last sample.
		return s.At(s.Header.StepCount-1, body)
	}
	t := pos - float64(i)

	// Clamp the outer control points at the series edges.
	i0 := max(i-1, 0)
	i3 := min(i+2, s.Header.StepCount-1)

	p0, err := s.At(i0, body)
	if err != nil {
		return 0, err
	}
	p1, err := s.At(i, body)
	if err != nil {
		return 0, err
	}
	p2, err := s.At(i+1, body)
	if err != nil {
		return 0, err
	}
	p3, err := s.At(i3, body)
	if err != nil {
		return 0, err
	}

	// Unwrap onto a continuous arc around p1.
	u1 := p1
	u0 := u1 - codec.ArcDistance(p1, p0)
	u2 := u1 + codec.ArcDistance(p2, p1)
	u3 := u2 + codec.ArcDistance(p3, p2)

	return codec.NormalizeAngle(catmullRom(u0, u1, u2, u3, t)), nil
}

// catmullRom evaluates the uniform Catmull-Rom spline at t in [0,1].
func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}
