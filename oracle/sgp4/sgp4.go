// Package sgp4 adapts SGP4 orbit propagation to the oracle interface, so
// Earth-orbiting bodies can be tracked through the same kernel pipeline as
// ephemeris bodies. Each registered body is backed by a two-line element
// set; the reported angle is the geocentric right ascension of the
// propagated position.
package sgp4

import (
	"context"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/oracle"
)

const unixEpochJD = 2440587.5

// speedSampleJD is the finite-difference baseline used to derive angular
// speed: one minute, small enough that even LEO motion is locally linear.
const speedSampleJD = 1.0 / 1440.0

// Oracle propagates TLE-backed bodies with SGP4.
type Oracle struct {
	sats map[int]satellite.Satellite
}

// New returns an empty SGP4 oracle.
func New() *Oracle {
	return &Oracle{sats: make(map[int]satellite.Satellite)}
}

// Register associates a body identifier with a TLE pair. Registering the
// same identifier again replaces the previous element set.
func (o *Oracle) Register(bodyID int, tleLine1, tleLine2 string) {
	o.sats[bodyID] = satellite.TLEToSat(tleLine1, tleLine2, satellite.GravityWGS72)
}

// Calc implements oracle.Oracle. The longitude is the right ascension of
// the geocentric ECI position in degrees, reduced into [0, 360).
func (o *Oracle) Calc(ctx context.Context, jd float64, bodyID int, flags oracle.Flag) (oracle.Position, error) {
	if err := ctx.Err(); err != nil {
		return oracle.Position{}, err
	}
	sat, ok := o.sats[bodyID]
	if !ok {
		return oracle.Position{}, oracle.NewError(bodyID, jd, "no element set registered", nil)
	}

	lon, err := o.rightAscension(sat, jd, bodyID)
	if err != nil {
		return oracle.Position{}, err
	}

	pos := oracle.Position{Longitude: lon}
	if flags&oracle.FlagSpeed != 0 {
		next, err := o.rightAscension(sat, jd+speedSampleJD, bodyID)
		if err != nil {
			return oracle.Position{}, err
		}
		pos.Speed = codec.ArcDistance(next, lon) / speedSampleJD
	}
	return pos, nil
}

func (o *Oracle) rightAscension(sat satellite.Satellite, jd float64, bodyID int) (float64, error) {
	t := jdToTime(jd)
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	eci, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(eci.X) || math.IsNaN(eci.Y) {
		return 0, oracle.NewError(bodyID, jd, "propagation diverged", nil)
	}
	ra := math.Atan2(eci.Y, eci.X) * 180 / math.Pi
	return codec.NormalizeAngle(ra), nil
}

func jdToTime(jd float64) time.Time {
	sec := (jd - unixEpochJD) * 86400.0
	whole := math.Floor(sec)
	nanos := (sec - whole) * 1e9
	return time.Unix(int64(whole), int64(nanos)).UTC()
}
