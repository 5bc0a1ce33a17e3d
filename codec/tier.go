package codec

import "fmt"

// Tier is the declared time-resolution class of a kernel. It governs the
// sampling density used during validation and the width of each persisted
// record: day-tier kernels store longitude only, finer tiers add the
// quantized speed so consumers can tell direct from retrograde motion.
type Tier uint8

const (
	TierDay Tier = iota
	TierMinute
	TierSecond
)

const (
	jdMinute = 1.0 / 1440.0
	jdSecond = 1.0 / 86400.0
)

// ParseTier maps the user-facing tier names (and their single-letter
// shorthands) to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "d", "day":
		return TierDay, nil
	case "m", "minute":
		return TierMinute, nil
	case "s", "second":
		return TierSecond, nil
	default:
		return 0, fmt.Errorf("codec: unknown tier %q", s)
	}
}

// StepJD returns the tier's sampling interval in Julian days.
func (t Tier) StepJD() float64 {
	switch t {
	case TierMinute:
		return jdMinute
	case TierSecond:
		return jdSecond
	default:
		return 1.0
	}
}

// RecordSize returns the per-body record width in bytes for this tier.
func (t Tier) RecordSize() int {
	if t == TierDay {
		return AngleBytes
	}
	return AngleBytes + SpeedBytes
}

// HasSpeed reports whether records of this tier carry a speed field.
func (t Tier) HasSpeed() bool {
	return t != TierDay
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t <= TierSecond
}

func (t Tier) String() string {
	switch t {
	case TierDay:
		return "day"
	case TierMinute:
		return "minute"
	case TierSecond:
		return "second"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}
