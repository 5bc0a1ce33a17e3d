package codec

import (
	"fmt"
	"math"
)

// SpeedBytes is the persisted width of a quantized speed.
const SpeedBytes = 2

const speedSteps = math.MaxUint16

// SpeedCodec quantizes a body's angular speed. The mapping is per-body
// range-scaled: [-Max, +Max] deg/day is mapped linearly onto the full
// uint16 range, so fast movers and slow movers both use all 16 bits.
// Input outside the range clamps to the nearest bound.
type SpeedCodec struct {
	max      float64
	scale    float64 // steps per deg/day
	invScale float64 // deg/day per step
}

// NewSpeedCodec returns a codec for a body whose speed magnitude never
// exceeds max deg/day. A non-positive max is invalid: the affine map would
// divide by zero, and the catalog validation is expected to have rejected
// such a body already.
func NewSpeedCodec(max float64) (SpeedCodec, error) {
	if max <= 0 || math.IsInf(max, 0) || math.IsNaN(max) {
		return SpeedCodec{}, fmt.Errorf("codec: invalid max speed %v", max)
	}
	return SpeedCodec{
		max:      max,
		scale:    speedSteps / (2 * max),
		invScale: (2 * max) / speedSteps,
	}, nil
}

// Max returns the speed bound the codec was built with.
func (c SpeedCodec) Max() float64 { return c.max }

// Encode quantizes speed, clamping to [-Max, +Max] first.
func (c SpeedCodec) Encode(speed float64) uint16 {
	if speed < -c.max {
		speed = -c.max
	} else if speed > c.max {
		speed = c.max
	}
	return uint16(math.Round((speed + c.max) * c.scale))
}

// Decode inverts the affine map.
func (c SpeedCodec) Decode(v uint16) float64 {
	return float64(v)*c.invScale - c.max
}

// Step returns the quantization granularity in deg/day.
func (c SpeedCodec) Step() float64 { return c.invScale }
