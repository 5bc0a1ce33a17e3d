// Package verify measures how faithfully a reconstruction source tracks the
// oracle across a time span. It drives multiple interleaved sampling passes
// so coarse errors surface early, and reports per-body maxima plus every
// sample that broke tolerance.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/oracle"
	"github.com/zenithlab/zenith/search"
)

// Lookuper reconstructs all catalog longitudes for an instant.
// *search.Reconstructor satisfies it.
type Lookuper interface {
	Lookup(ctx context.Context, jd float64) (*search.Result, error)
}

// Options configures a verification run.
type Options struct {
	// Passes is the number of interleaved sweeps over the span. Each pass
	// covers the whole span at a different phase, so early passes already
	// sample it end to end.
	Passes int

	// PointsPerPass is the number of instants sampled per pass.
	PointsPerPass int

	// Tolerance is the maximum acceptable absolute shortest-arc error in
	// degrees. Defaults to one quantization step.
	Tolerance float64

	// Parallelism bounds concurrent lookups within a pass.
	Parallelism int

	// Logger receives per-pass progress. Defaults to a discard logger.
	Logger *slog.Logger
}

// DefaultOptions returns the default verification configuration.
func DefaultOptions() Options {
	return Options{
		Passes:        4,
		PointsPerPass: 256,
		Tolerance:     codec.AngleStep,
		Parallelism:   runtime.GOMAXPROCS(0),
		Logger:        slog.New(slog.DiscardHandler),
	}
}

// ErrorSample is one instant where a body's reconstruction error exceeded
// tolerance.
type ErrorSample struct {
	JD        float64
	BodyID    int
	Magnitude float64
}

// Report is the outcome of a verification run. MaxError is indexed by
// catalog position. Exceeded is sorted by instant, then body identifier, so
// runs are comparable regardless of scheduling.
type Report struct {
	Checks   int
	MaxError []float64
	Exceeded []ErrorSample

	// OracleFailures counts body samples the oracle could not answer even
	// after a fallback retry. Those samples carry no error measurement.
	OracleFailures int

	Passed   bool
	Duration time.Duration
}

// WorstError returns the largest per-body maximum.
func (r *Report) WorstError() float64 {
	worst := 0.0
	for _, e := range r.MaxError {
		if e > worst {
			worst = e
		}
	}
	return worst
}

// Verifier compares a reconstruction source against the oracle that the
// source's kernels were built from.
type Verifier struct {
	catalog body.Catalog
	lookup  Lookuper
	oracle  oracle.Oracle
	opts    Options
}

// New creates a verifier for the given catalog, reconstruction source and
// reference oracle.
func New(cat body.Catalog, lookup Lookuper, o oracle.Oracle, optFns ...func(*Options)) (*Verifier, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Passes <= 0 || opts.PointsPerPass <= 0 {
		return nil, fmt.Errorf("verify: need at least one pass and one point, got %dx%d",
			opts.Passes, opts.PointsPerPass)
	}
	if opts.Tolerance <= 0 || math.IsNaN(opts.Tolerance) {
		return nil, fmt.Errorf("verify: invalid tolerance %v", opts.Tolerance)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Verifier{catalog: cat, lookup: lookup, oracle: o, opts: opts}, nil
}

// Run verifies the span [startJD, endJD]. Cancellation is honored between
// passes and between lookups within a pass.
func (v *Verifier) Run(ctx context.Context, startJD, endJD float64) (*Report, error) {
	if endJD < startJD {
		return nil, fmt.Errorf("verify: end %v precedes start %v", endJD, startJD)
	}

	start := time.Now()
	report := &Report{MaxError: make([]float64, len(v.catalog))}
	var mu sync.Mutex

	for pass := 0; pass < v.opts.Passes; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := v.runPass(ctx, startJD, endJD, pass, report, &mu); err != nil {
			return nil, err
		}
		v.opts.Logger.InfoContext(ctx, "verification pass complete",
			"pass", pass+1,
			"passes", v.opts.Passes,
			"checks", report.Checks,
			"worst_error", report.WorstError(),
		)
	}

	// Canonical order: by instant, then body, so diffing two runs works.
	sort.Slice(report.Exceeded, func(i, j int) bool {
		a, b := report.Exceeded[i], report.Exceeded[j]
		if a.JD != b.JD {
			return a.JD < b.JD
		}
		return a.BodyID < b.BodyID
	})

	report.Passed = len(report.Exceeded) == 0 && report.OracleFailures == 0
	report.Duration = time.Since(start)
	return report, nil
}

// runPass samples PointsPerPass instants phase-shifted by the pass index, so
// successive passes interleave instead of resampling the same instants.
func (v *Verifier) runPass(ctx context.Context, startJD, endJD float64, pass int, report *Report, mu *sync.Mutex) error {
	span := endJD - startJD
	phase := (float64(pass) + 0.5) / float64(v.opts.Passes)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Parallelism)

	for p := 0; p < v.opts.PointsPerPass; p++ {
		jd := startJD + span*(float64(p)+phase)/float64(v.opts.PointsPerPass)
		g.Go(func() error {
			return v.check(ctx, jd, report, mu)
		})
	}
	return g.Wait()
}

// check reconstructs one instant and folds its errors into the report.
func (v *Verifier) check(ctx context.Context, jd float64, report *Report, mu *sync.Mutex) error {
	res, err := v.lookup.Lookup(ctx, jd)
	if err != nil {
		return fmt.Errorf("verify: lookup at %v: %w", jd, err)
	}
	if len(res.Longitudes) != len(v.catalog) {
		return fmt.Errorf("verify: lookup at %v returned %d longitudes for a %d-body catalog",
			jd, len(res.Longitudes), len(v.catalog))
	}

	errs := make([]float64, len(v.catalog))
	failed := make([]bool, len(v.catalog))
	for i, bd := range v.catalog {
		pos, err := v.sample(ctx, jd, bd)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Counted in the report; the run continues.
			failed[i] = true
			v.opts.Logger.WarnContext(ctx, "oracle sample failed",
				"body", bd.Name, "jd", jd, "error", err)
			continue
		}
		errs[i] = math.Abs(codec.ArcDistance(res.Longitudes[i], pos.Longitude))
	}

	mu.Lock()
	defer mu.Unlock()
	report.Checks++
	for i, e := range errs {
		if failed[i] {
			report.OracleFailures++
			continue
		}
		if e > report.MaxError[i] {
			report.MaxError[i] = e
		}
		if e > v.opts.Tolerance {
			report.Exceeded = append(report.Exceeded, ErrorSample{
				JD:        jd,
				BodyID:    v.catalog[i].ID,
				Magnitude: e,
			})
		}
	}
	return nil
}

// sample queries the oracle for one body, retrying on the fallback
// identifier when the body supports it. Mirrors the sampling discipline the
// kernels were built with.
func (v *Verifier) sample(ctx context.Context, jd float64, bd body.Body) (oracle.Position, error) {
	pos, err := v.oracle.Calc(ctx, jd, bd.ID, 0)
	if err == nil {
		return pos, nil
	}
	if !bd.SupportsFallback || ctx.Err() != nil {
		return oracle.Position{}, err
	}
	return v.oracle.Calc(ctx, jd, bd.FallbackID, 0)
}
