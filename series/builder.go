package series

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/oracle"
)

// BuildOptions configures a series build.
type BuildOptions struct {
	// Parallelism bounds concurrent oracle calls. Defaults to GOMAXPROCS.
	Parallelism int

	// RateLimit throttles oracle calls; zero means unlimited.
	RateLimit rate.Limit

	// Flags are merged into every oracle call.
	Flags oracle.Flag

	// Logger receives build diagnostics. Defaults to a discard logger.
	Logger *slog.Logger
}

// DefaultBuildOptions returns the default build configuration.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Parallelism: runtime.GOMAXPROCS(0),
		Logger:      slog.New(slog.DiscardHandler),
	}
}

// Builder samples a catalog across a time span into a Series.
type Builder struct {
	catalog body.Catalog
	oracle  oracle.Oracle
	opts    BuildOptions
	limiter *rate.Limiter
}

// NewBuilder validates the catalog and prepares a series builder.
func NewBuilder(cat body.Catalog, o oracle.Oracle, optFns ...func(*BuildOptions)) (*Builder, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	opts := DefaultBuildOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	b := &Builder{catalog: cat, oracle: o, opts: opts}
	if opts.RateLimit > 0 {
		b.limiter = rate.NewLimiter(opts.RateLimit, 1)
	}
	return b, nil
}

// Build samples every body at each step of [startJD, endJD] (endpoint
// included) and returns the series. Failed lookups become gaps in the
// validity bitmap rather than aborting the build; only cancellation and
// encoding violations are fatal.
func (b *Builder) Build(ctx context.Context, startJD, endJD, stepJD float64) (*Series, error) {
	if stepJD <= 0 || math.IsNaN(stepJD) || math.IsInf(stepJD, 0) {
		return nil, fmt.Errorf("series: invalid step %v", stepJD)
	}
	if endJD < startJD {
		return nil, fmt.Errorf("series: end %v precedes start %v", endJD, startJD)
	}

	start := time.Now()
	stepCount := int(math.Floor((endJD-startJD)/stepJD)) + 1
	bodyCount := len(b.catalog)

	lons := make([]uint32, stepCount*bodyCount)
	validSlots := make([]bool, stepCount*bodyCount)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)

	for s := 0; s < stepCount; s++ {
		jd := startJD + float64(s)*stepJD
		g.Go(func() error {
			for i, bd := range b.catalog {
				pos, err := b.sample(ctx, jd, bd)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					b.opts.Logger.WarnContext(ctx, "series sample failed, leaving gap",
						"step", s, "body", bd.Name, "jd", jd, "error", err)
					continue
				}
				lon, err := codec.EncodeAngle(pos.Longitude)
				if err != nil {
					return fmt.Errorf("series: step %d body %s: %w", s, bd.Name, err)
				}
				lons[s*bodyCount+i] = lon
				validSlots[s*bodyCount+i] = true
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	valid := roaring.New()
	for slot, ok := range validSlots {
		if ok {
			valid.Add(uint32(slot))
		}
	}

	h := Header{
		StartJD:     startJD,
		StepJD:      stepJD,
		StepCount:   stepCount,
		BodyCount:   bodyCount,
		CatalogHash: b.catalog.Hash(),
	}
	out, err := New(h, lons, valid)
	if err != nil {
		return nil, err
	}

	b.opts.Logger.InfoContext(ctx, "series built",
		"start", startJD,
		"end", endJD,
		"step", stepJD,
		"steps", stepCount,
		"bodies", bodyCount,
		"gaps", out.GapCount(),
		"duration", time.Since(start),
	)
	return out, nil
}

func (b *Builder) sample(ctx context.Context, jd float64, bd body.Body) (oracle.Position, error) {
	pos, err := b.call(ctx, jd, bd.ID)
	if err == nil {
		return pos, nil
	}
	if !bd.SupportsFallback || ctx.Err() != nil {
		return oracle.Position{}, err
	}
	return b.call(ctx, jd, bd.FallbackID)
}

func (b *Builder) call(ctx context.Context, jd float64, id int) (oracle.Position, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return oracle.Position{}, err
		}
	}
	return b.oracle.Calc(ctx, jd, id, b.opts.Flags)
}
