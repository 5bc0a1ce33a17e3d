// Package testutil provides deterministic helpers for kernel tests: a
// seeded RNG and a synthetic position oracle whose motion is a pure
// function of its inputs.
package testutil

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/oracle"
)

// RNG is a seed-reproducible random source. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Angle returns a pseudo-random angle in [0, 360).
func (r *RNG) Angle() float64 {
	return r.Float64() * 360
}

// Motion is the linear model of one synthetic body: longitude at the
// oracle's epoch plus a constant angular speed.
type Motion struct {
	Longitude float64 // degrees at Epoch
	Speed     float64 // deg/day
}

// Oracle is a deterministic synthetic position oracle. Positions follow
// Longitude + Speed*(jd-Epoch) reduced into [0, 360); lookups for
// identifiers absent from Bodies or present in Fail return an
// oracle.Error. Calls counts every Calc invocation, which lets tests
// assert cache and fallback behavior.
type Oracle struct {
	Epoch  float64
	Bodies map[int]Motion
	Fail   map[int]struct{}

	Calls atomic.Int64
}

// NewOracle builds a synthetic oracle for the given catalog with
// seed-derived base longitudes and speeds at 80% of each body's declared
// maximum. Fallback identifiers move identically to their primaries.
func NewOracle(cat body.Catalog, epoch float64, seed int64) *Oracle {
	rng := NewRNG(seed)
	bodies := make(map[int]Motion, len(cat))
	for _, b := range cat {
		m := Motion{
			Longitude: rng.Angle(),
			Speed:     (rng.Float64()*1.6 - 0.8) * b.MaxSpeed,
		}
		bodies[b.ID] = m
		if b.SupportsFallback {
			bodies[b.FallbackID] = m
		}
	}
	return &Oracle{Epoch: epoch, Bodies: bodies, Fail: make(map[int]struct{})}
}

// FailBody makes every lookup for id fail until the entry is removed.
func (o *Oracle) FailBody(id int) {
	o.Fail[id] = struct{}{}
}

// Calc implements oracle.Oracle.
func (o *Oracle) Calc(ctx context.Context, jd float64, bodyID int, flags oracle.Flag) (oracle.Position, error) {
	o.Calls.Add(1)
	if err := ctx.Err(); err != nil {
		return oracle.Position{}, err
	}
	if _, failed := o.Fail[bodyID]; failed {
		return oracle.Position{}, oracle.NewError(bodyID, jd, "synthetic failure", nil)
	}
	m, ok := o.Bodies[bodyID]
	if !ok {
		return oracle.Position{}, oracle.NewError(bodyID, jd, "unknown body", nil)
	}
	pos := oracle.Position{
		Longitude: codec.NormalizeAngle(m.Longitude + m.Speed*(jd-o.Epoch)),
	}
	if flags&oracle.FlagSpeed != 0 {
		pos.Speed = m.Speed
	}
	return pos, nil
}
