// Package codec converts angular positions and speeds between their
// floating-point form and the fixed-point integers persisted in kernels.
//
// Angles live in [0, 360) and are stored at AngleScale steps per degree,
// which keeps quantization error under one step (0.06 arcseconds) while
// fitting a single little-endian uint32 per longitude. The representable
// range is asserted against the field width: an angle that would not fit
// is an encode error, never a silent mask.
package codec

import (
	"errors"
	"fmt"
	"math"
)

const (
	// AngleScale is the number of quantization steps per degree.
	AngleScale = 60000

	// AngleBytes is the persisted width of a quantized longitude.
	AngleBytes = 4

	// angleSteps is the representable step count: one full turn.
	// 360 * 60000 = 21,600,000 needs 25 bits; the field provides 32.
	angleSteps = 360 * AngleScale

	// AngleStep is the quantization granularity in degrees (0.06 arcsec).
	AngleStep = 1.0 / AngleScale
)

// ErrRangeOverflow is returned when a quantized value would not fit its
// declared field width. This is the codec's single most safety-critical
// guard: truncating instead would wrap valid angles into wrong ones.
var ErrRangeOverflow = errors.New("codec: quantized value exceeds field range")

func init() {
	// The whole-turn step count must fit the longitude field. A scale
	// change that silently outgrows the field is a data-corruption bug,
	// so fail loudly at process start.
	if angleSteps > math.MaxUint32 {
		panic("codec: angle scale exceeds uint32 field range")
	}
}

// NormalizeAngle reduces deg into [0, 360) by Euclidean remainder: the
// result is never negative and never reaches 360.
func NormalizeAngle(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	return m
}

// EncodeAngle normalizes deg into [0, 360) and quantizes it to AngleScale
// steps per degree. NaN and infinite input are rejected.
func EncodeAngle(deg float64) (uint32, error) {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, fmt.Errorf("codec: cannot encode angle %v", deg)
	}
	norm := NormalizeAngle(deg)
	steps := math.Round(norm * AngleScale)
	// 359.999999° rounds up to exactly one full turn, which is the same
	// point as 0°.
	if steps >= angleSteps {
		steps -= angleSteps
	}
	if steps < 0 || steps > math.MaxUint32 {
		return 0, fmt.Errorf("%w: angle %v -> %v steps", ErrRangeOverflow, deg, steps)
	}
	return uint32(steps), nil
}

// DecodeAngle reconstructs the angle in degrees from its quantized form.
func DecodeAngle(v uint32) float64 {
	return float64(v) / AngleScale
}

// ArcDistance returns the shortest-arc angular difference a-b, corrected
// into [-180, 180]. Positions 350° and 10° are 20° apart, not 340°.
func ArcDistance(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}
