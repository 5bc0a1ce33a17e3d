package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAngleRoundTrip(t *testing.T) {
	angles := []float64{
		0.0,
		0.5 / AngleScale, // exactly on a rounding boundary
		1.0 / AngleScale, // exactly on a quantization step
		29.9999,
		123.456789,
		180.0,
		359.999999,
	}
	for _, a := range angles {
		v, err := EncodeAngle(a)
		require.NoError(t, err, "angle %v", a)
		got := DecodeAngle(v)
		diff := math.Abs(ArcDistance(got, a))
		assert.LessOrEqual(t, diff, AngleStep, "angle %v decoded to %v", a, got)
	}
}

func TestEncodeAngleNormalization(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-10, 350},
		{370, 10},
		{-360, 0},
		{720.25, 0.25},
	}
	for _, tt := range tests {
		v, err := EncodeAngle(tt.in)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, DecodeAngle(v), AngleStep, "input %v", tt.in)
	}
}

// The 360°×60000 step count needs 25 bits. A 24-bit field would silently
// wrap angles above ~279.6°; this test pins the full-range safety of the
// 32-bit field for the worst-case encodable values.
func TestEncodeAngleRangeSafety(t *testing.T) {
	require.LessOrEqual(t, uint64(360*AngleScale), uint64(math.MaxUint32))

	v, err := EncodeAngle(359.999999)
	require.NoError(t, err)
	assert.LessOrEqual(t, uint64(v), uint64(math.MaxUint32))

	// The last representable step, 1/scale below a full turn.
	last := 360.0 - 1.0/AngleScale
	v, err = EncodeAngle(last)
	require.NoError(t, err)
	assert.Equal(t, uint32(360*AngleScale-1), v)
	assert.Greater(t, uint64(v), uint64(1<<24), "value must exceed 24-bit range, masking would corrupt it")
}

func TestEncodeAngleFullTurnWraps(t *testing.T) {
	// 359.9999999° rounds up to one full turn, which is the same point
	// as 0° and must encode as step 0, not as an out-of-range value.
	v, err := EncodeAngle(359.9999999)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestEncodeAngleRejectsNonFinite(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := EncodeAngle(bad)
		assert.Error(t, err, "value %v", bad)
	}
}

func TestArcDistance(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{350, 10, -20},
		{10, 350, 20},
		{0, 359, 1},
		{180, 0, 180},
		{90, 45, 45},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ArcDistance(tt.a, tt.b), 1e-12, "ArcDistance(%v, %v)", tt.a, tt.b)
		assert.InDelta(t, 20.0, math.Abs(ArcDistance(350, 10)), 1e-12)
	}
}
