package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/oracle"
)

// Options configures a Builder.
type Options struct {
	// Parallelism bounds the concurrent oracle calls during builds and
	// deviation scans. Defaults to GOMAXPROCS.
	Parallelism int

	// RateLimit throttles oracle calls; zero means unlimited. Useful
	// when the oracle fronts a shared or remote computation service.
	RateLimit rate.Limit

	// TZOffsetSec and Location are copied into the kernel header.
	TZOffsetSec int32
	Location    *Geo

	// Flags are merged into every oracle call. FlagSpeed is added
	// automatically for tiers whose records carry speed.
	Flags oracle.Flag

	// Logger receives per-body diagnostics. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// DefaultOptions returns the default builder configuration.
func DefaultOptions() Options {
	return Options{
		Parallelism: runtime.GOMAXPROCS(0),
		Logger:      slog.New(slog.DiscardHandler),
	}
}

// Failure records one body that could not be resolved after all retries.
// Its record slot holds the zero sentinel.
type Failure struct {
	Index  int
	BodyID int
	Err    error
}

// Report aggregates build diagnostics. Failures are body-level and do not
// abort a build; they are surfaced here instead of being hidden.
type Report struct {
	Failures []Failure
	Duration time.Duration
}

// Builder populates kernels from live oracle queries.
type Builder struct {
	catalog body.Catalog
	oracle  oracle.Oracle
	tier    codec.Tier
	opts    Options
	limiter *rate.Limiter
	speeds  []codec.SpeedCodec
}

// NewBuilder validates the catalog and prepares per-body speed codecs.
func NewBuilder(cat body.Catalog, o oracle.Oracle, tier codec.Tier, optFns ...func(*Options)) (*Builder, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("kernel: invalid tier %d", uint8(tier))
	}

	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	speeds := make([]codec.SpeedCodec, len(cat))
	for i, b := range cat {
		sc, err := codec.NewSpeedCodec(b.MaxSpeed)
		if err != nil {
			return nil, fmt.Errorf("kernel: body %d (%s): %w", i, b.Name, err)
		}
		speeds[i] = sc
	}

	b := &Builder{
		catalog: cat,
		oracle:  o,
		tier:    tier,
		opts:    opts,
		speeds:  speeds,
	}
	if opts.RateLimit > 0 {
		b.limiter = rate.NewLimiter(opts.RateLimit, 1)
	}
	return b, nil
}

// Build samples every catalog body at baseJD and returns the kernel plus a
// diagnostics report. A body that fails both its primary and fallback
// lookup is written as a zero sentinel and listed in the report; only
// cancellation and encoding violations abort the build.
func (b *Builder) Build(ctx context.Context, baseJD float64) (*Kernel, *Report, error) {
	start := time.Now()

	records := make([]Record, len(b.catalog))
	report := &Report{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)

	for i, bd := range b.catalog {
		g.Go(func() error {
			pos, err := b.sample(ctx, baseJD, bd)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Index: i, BodyID: bd.ID, Err: err})
				mu.Unlock()
				b.opts.Logger.WarnContext(ctx, "body lookup failed, writing sentinel",
					"index", i, "body", bd.Name, "error", err)
				return nil
			}

			lon, err := codec.EncodeAngle(pos.Longitude)
			if err != nil {
				return fmt.Errorf("kernel: body %d (%s): %w", i, bd.Name, err)
			}
			rec := Record{Longitude: lon}
			if b.tier.HasSpeed() {
				rec.Speed = b.speeds[i].Encode(pos.Speed)
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	report.Duration = time.Since(start)
	b.opts.Logger.InfoContext(ctx, "kernel built",
		"epoch", baseJD,
		"tier", b.tier.String(),
		"bodies", len(b.catalog),
		"failures", len(report.Failures),
		"duration", report.Duration,
	)

	k := &Kernel{
		Header: Header{
			Tier:        b.tier,
			TZOffsetSec: b.opts.TZOffsetSec,
			BaseEpoch:   baseJD,
			CatalogHash: b.catalog.Hash(),
			Location:    b.opts.Location,
		},
		Records: records,
	}
	return k, report, nil
}

// sample queries the oracle for one body, retrying once with the fallback
// identifier when the body supports it.
func (b *Builder) sample(ctx context.Context, jd float64, bd body.Body) (oracle.Position, error) {
	flags := b.opts.Flags
	if b.tier.HasSpeed() {
		flags |= oracle.FlagSpeed
	}

	pos, err := b.call(ctx, jd, bd.ID, flags)
	if err == nil {
		return pos, nil
	}
	if !bd.SupportsFallback || ctx.Err() != nil {
		return oracle.Position{}, err
	}
	return b.call(ctx, jd, bd.FallbackID, flags)
}

func (b *Builder) call(ctx context.Context, jd float64, id int, flags oracle.Flag) (oracle.Position, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return oracle.Position{}, err
		}
	}
	return b.oracle.Calc(ctx, jd, id, flags)
}

// ScanDeviation walks [k.BaseEpoch, endJD] in tier-sized steps and returns
// each body's maximum absolute shortest-arc deviation from its stored base
// position. The statistic is diagnostic: it is what an extended kernel
// variant must derive its error-tolerance claims from. Bodies that fail
// during the scan are skipped at the failing step, mirroring build
// semantics.
func (b *Builder) ScanDeviation(ctx context.Context, k *Kernel, endJD float64) ([]float64, error) {
	if len(k.Records) != len(b.catalog) {
		return nil, fmt.Errorf("kernel: record count %d does not match catalog length %d", len(k.Records), len(b.catalog))
	}
	if endJD < k.Header.BaseEpoch {
		return nil, fmt.Errorf("kernel: end epoch %g precedes base epoch %g", endJD, k.Header.BaseEpoch)
	}

	base := make([]float64, len(b.catalog))
	for i := range b.catalog {
		base[i] = k.Longitude(i)
	}

	step := b.tier.StepJD()
	steps := int(math.Ceil((endJD-k.Header.BaseEpoch)/step)) + 1

	maxDev := make([]float64, len(b.catalog))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)

	for s := 0; s < steps; s++ {
		jd := k.Header.BaseEpoch + float64(s)*step
		if jd > endJD {
			jd = endJD
		}
		g.Go(func() error {
			local := make([]float64, len(b.catalog))
			for i, bd := range b.catalog {
				pos, err := b.sample(ctx, jd, bd)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					continue
				}
				local[i] = math.Abs(codec.ArcDistance(pos.Longitude, base[i]))
			}
			mu.Lock()
			for i, d := range local {
				if d > maxDev[i] {
					maxDev[i] = d
				}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return maxDev, nil
}
