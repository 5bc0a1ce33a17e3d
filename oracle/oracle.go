// Package oracle defines the external position authority consumed by kernel
// builders and verifiers.
//
// The oracle is a black box: given a time coordinate and a body identifier
// it returns the body's angular position (and optionally speed), or fails.
// Implementations must be pure functions of their inputs — the verifier's
// determinism guarantee depends on it.
package oracle

import (
	"context"
	"fmt"
)

// Flag requests optional computations from the oracle.
type Flag uint32

const (
	// FlagSpeed requests the angular speed alongside the position.
	FlagSpeed Flag = 1 << iota
	// FlagTopocentric requests a position relative to a configured
	// geographic location instead of the geocenter.
	FlagTopocentric
	// FlagSidereal requests sidereal rather than tropical longitudes.
	FlagSidereal
)

// Position is one oracle answer. Longitude is in degrees, already reduced
// into [0, 360); Speed is in degrees per day and only meaningful when
// FlagSpeed was requested.
type Position struct {
	Longitude float64
	Speed     float64
}

// Oracle computes ground-truth angular positions on demand.
type Oracle interface {
	Calc(ctx context.Context, jd float64, bodyID int, flags Flag) (Position, error)
}

// Error reports a failed lookup for a single (time, body) pair. Builders
// treat it as recoverable: the failure is logged and aggregated, the batch
// continues.
type Error struct {
	BodyID int
	JD     float64
	Msg    string
	cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle: body %d at JD %g: %s", e.BodyID, e.JD, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds an Error wrapping an optional cause.
func NewError(bodyID int, jd float64, msg string, cause error) *Error {
	return &Error{BodyID: bodyID, JD: jd, Msg: msg, cause: cause}
}
