// Package search reconstructs body positions for arbitrary instants, choosing
// the cheapest path that satisfies the precision contract: decoding the
// snapshot at its base epoch, interpolating a time series in range, or
// delegating to the oracle.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/kernel"
	"github.com/zenithlab/zenith/oracle"
	"github.com/zenithlab/zenith/series"
)

// Source identifies which path produced a result.
type Source uint8

const (
	// SourceSnapshot means the longitudes were decoded from the snapshot
	// kernel at its base epoch.
	SourceSnapshot Source = iota
	// SourceSeries means the longitudes were interpolated from a time
	// series.
	SourceSeries
	// SourceOracle means the query fell through to a live oracle call.
	SourceOracle
)

func (s Source) String() string {
	switch s {
	case SourceSnapshot:
		return "snapshot"
	case SourceSeries:
		return "series"
	case SourceOracle:
		return "oracle"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// ErrNoPath is returned when no snapshot, series or oracle can serve the
// query.
var ErrNoPath = errors.New("search: no reconstruction path for instant")

// epochTolerance is how close a query must sit to the snapshot's base epoch
// to be served from the snapshot directly. Roughly a millisecond in JD.
const epochTolerance = 1e-8

// Result holds reconstructed longitudes for one instant. Longitudes is
// indexed by catalog position.
type Result struct {
	QueryJD    float64
	Longitudes []float64
	Source     Source

	// Verified reports whether every longitude was checked against an
	// independent oracle sample and landed within Tolerance: one
	// quantization step for decoded or interpolated values, 1e-6 degrees
	// for oracle passthrough. Decoded results served without an oracle
	// cannot be checked and report false.
	Verified bool

	// Tolerance is the guarantee the Verified claim was checked against.
	Tolerance float64
}

// Reconstructor answers instant queries from a snapshot kernel, optional time
// series, and an oracle fallback. Any of the three sources may be nil; a
// query that no configured source can serve fails with ErrNoPath.
type Reconstructor struct {
	catalog  body.Catalog
	snapshot *kernel.Kernel
	series   *series.Series
	oracle   oracle.Oracle
}

// NewReconstructor validates that the configured sources belong to the given
// catalog.
func NewReconstructor(cat body.Catalog, snapshot *kernel.Kernel, ts *series.Series, o oracle.Oracle) (*Reconstructor, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	hash := cat.Hash()

	if snapshot != nil {
		if snapshot.Header.CatalogHash != hash {
			return nil, fmt.Errorf("search: snapshot catalog hash 0x%016x does not match 0x%016x",
				snapshot.Header.CatalogHash, hash)
		}
		if len(snapshot.Records) != len(cat) {
			return nil, fmt.Errorf("search: snapshot has %d records for a %d-body catalog",
				len(snapshot.Records), len(cat))
		}
	}
	if ts != nil {
		if ts.Header.CatalogHash != hash {
			return nil, fmt.Errorf("search: series catalog hash 0x%016x does not match 0x%016x",
				ts.Header.CatalogHash, hash)
		}
		if ts.Header.BodyCount != len(cat) {
			return nil, fmt.Errorf("search: series has %d bodies for a %d-body catalog",
				ts.Header.BodyCount, len(cat))
		}
	}

	return &Reconstructor{catalog: cat, snapshot: snapshot, series: ts, oracle: o}, nil
}

// Lookup reconstructs the longitudes of every catalog body at jd.
func (r *Reconstructor) Lookup(ctx context.Context, jd float64) (*Result, error) {
	if math.IsNaN(jd) || math.IsInf(jd, 0) {
		return nil, fmt.Errorf("search: invalid instant %v", jd)
	}

	if r.snapshot != nil && math.Abs(jd-r.snapshot.Header.BaseEpoch) <= epochTolerance {
		return r.fromSnapshot(ctx, jd), nil
	}
	if r.series != nil && jd >= r.series.Header.StartJD && jd <= r.series.Header.EndJD() {
		res, err := r.fromSeries(ctx, jd)
		if err == nil {
			return res, nil
		}
		// A gap in the series falls through to the oracle.
		if r.oracle == nil || !errors.Is(err, series.ErrGap) {
			return nil, err
		}
	}
	if r.oracle != nil {
		return r.fromOracle(ctx, jd)
	}

	return nil, fmt.Errorf("%w: jd %v", ErrNoPath, jd)
}

// Nearest returns the instant the reconstructor can serve that lies closest
// to jd without consulting the oracle, alongside its distance in days. With
// no snapshot or series configured it returns ErrNoPath.
func (r *Reconstructor) Nearest(jd float64) (float64, float64, error) {
	best := math.NaN()
	bestDist := math.Inf(1)

	consider := func(candidate float64) {
		if d := math.Abs(candidate - jd); d < bestDist {
			best, bestDist = candidate, d
		}
	}

	if r.snapshot != nil {
		consider(r.snapshot.Header.BaseEpoch)
	}
	if r.series != nil {
		h := r.series.Header
		switch {
		case jd <= h.StartJD:
			consider(h.StartJD)
		case jd >= h.EndJD():
			consider(h.EndJD())
		default:
			// Snap to the nearest sampled step.
			step := math.Round((jd - h.StartJD) / h.StepJD)
			consider(h.StartJD + step*h.StepJD)
		}
	}

	if math.IsNaN(best) {
		return 0, 0, ErrNoPath
	}
	return best, bestDist, nil
}

func (r *Reconstructor) fromSnapshot(ctx context.Context, jd float64) *Result {
	lons := make([]float64, len(r.catalog))
	for i := range lons {
		lons[i] = r.snapshot.Longitude(i)
	}
	return &Result{
		QueryJD:    jd,
		Longitudes: lons,
		Source:     SourceSnapshot,
		Verified:   r.verified(ctx, jd, lons, codec.AngleStep),
		Tolerance:  codec.AngleStep,
	}
}

func (r *Reconstructor) fromSeries(ctx context.Context, jd float64) (*Result, error) {
	lons := make([]float64, len(r.catalog))
	for i := range lons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lon, err := r.series.Sample(jd, i)
		if err != nil {
			return nil, err
		}
		lons[i] = lon
	}
	return &Result{
		QueryJD:    jd,
		Longitudes: lons,
		Source:     SourceSeries,
		Verified:   r.verified(ctx, jd, lons, codec.AngleStep),
		Tolerance:  codec.AngleStep,
	}, nil
}

func (r *Reconstructor) fromOracle(ctx context.Context, jd float64) (*Result, error) {
	lons := make([]float64, len(r.catalog))
	for i, bd := range r.catalog {
		pos, err := r.sample(ctx, jd, bd)
		if err != nil {
			return nil, fmt.Errorf("search: body %s at %v: %w", bd.Name, jd, err)
		}
		lons[i] = codec.NormalizeAngle(pos.Longitude)
	}
	return &Result{
		QueryJD:    jd,
		Longitudes: lons,
		Source:     SourceOracle,
		// The served values are the oracle's own, so they agree with it
		// by construction.
		Verified:  true,
		Tolerance: 1e-6,
	}, nil
}

// verified checks every longitude against a fresh oracle sample. Without an
// oracle, or when any sample fails or lands outside tol, the result cannot
// carry a precision claim and the flag stays false.
func (r *Reconstructor) verified(ctx context.Context, jd float64, lons []float64, tol float64) bool {
	if r.oracle == nil {
		return false
	}
	for i, bd := range r.catalog {
		pos, err := r.sample(ctx, jd, bd)
		if err != nil {
			return false
		}
		if math.Abs(codec.ArcDistance(lons[i], codec.NormalizeAngle(pos.Longitude))) > tol {
			return false
		}
	}
	return true
}

func (r *Reconstructor) sample(ctx context.Context, jd float64, bd body.Body) (oracle.Position, error) {
	pos, err := r.oracle.Calc(ctx, jd, bd.ID, 0)
	if err == nil {
		return pos, nil
	}
	if !bd.SupportsFallback || ctx.Err() != nil {
		return oracle.Position{}, err
	}
	return r.oracle.Calc(ctx, jd, bd.FallbackID, 0)
}
