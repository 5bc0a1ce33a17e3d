package zenith

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zenithlab/zenith/blobstore"
	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/kernel"
	"github.com/zenithlab/zenith/oracle"
	"github.com/zenithlab/zenith/persistence"
	"github.com/zenithlab/zenith/search"
	"github.com/zenithlab/zenith/series"
	"github.com/zenithlab/zenith/verify"
)

// Zenith is an ephemeris kernel engine: it builds kernels from an oracle,
// reconstructs positions from whatever kernels it holds, verifies them, and
// publishes them to a blob store.
//
// All methods are safe for concurrent use.
type Zenith struct {
	catalog body.Catalog
	oracle  oracle.Oracle
	opts    options

	mu       sync.Mutex
	closed   bool
	snapshot *kernel.Kernel
	series   *series.Series
	recon    *search.Reconstructor
}

// New creates an engine for the given catalog and oracle. The engine starts
// without kernels; lookups are served by the oracle until BuildSnapshot,
// BuildSeries or one of the load methods installs a kernel.
func New(cat body.Catalog, orc oracle.Oracle, optFns ...Option) (*Zenith, error) {
	if orc == nil {
		return nil, errors.New("zenith: oracle must not be nil")
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	opts := applyOptions(optFns)
	if !opts.tier.Valid() {
		return nil, fmt.Errorf("zenith: invalid tier %d", opts.tier)
	}

	z := &Zenith{
		catalog: cat,
		oracle:  orc,
		opts:    opts,
	}
	if err := z.refresh(); err != nil {
		return nil, err
	}
	return z, nil
}

// refresh rebuilds the reconstructor from the current kernels.
// Callers must hold z.mu or have exclusive access.
func (z *Zenith) refresh() error {
	recon, err := search.NewReconstructor(z.catalog, z.snapshot, z.series, z.oracle)
	if err != nil {
		return translateError(err)
	}
	z.recon = recon
	return nil
}

func (z *Zenith) reconstructor() (*search.Reconstructor, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return nil, ErrClosed
	}
	return z.recon, nil
}

// BuildSnapshot samples every catalog body at baseJD into a snapshot kernel
// and installs it. Body-level failures do not abort the build; they are
// reported and the affected slots hold the zero sentinel.
func (z *Zenith) BuildSnapshot(ctx context.Context, baseJD float64) (*kernel.Report, error) {
	if _, err := z.reconstructor(); err != nil {
		return nil, err
	}

	b, err := kernel.NewBuilder(z.catalog, z.oracle, z.opts.tier, func(o *kernel.Options) {
		if z.opts.parallelism > 0 {
			o.Parallelism = z.opts.parallelism
		}
		o.RateLimit = z.opts.rateLimit
		o.TZOffsetSec = z.opts.tzOffsetSec
		o.Location = z.opts.location
		o.Logger = z.opts.logger.Logger
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	k, report, err := b.Build(ctx, baseJD)
	duration := time.Since(start)

	failures := 0
	if report != nil {
		failures = len(report.Failures)
	}
	z.opts.metricsCollector.RecordBuild(z.opts.tier.String(), failures, duration, err)
	z.opts.logger.LogBuild(ctx, z.opts.tier.String(), baseJD, failures, duration, err)
	if err != nil {
		return report, err
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return report, ErrClosed
	}
	z.snapshot = k
	if err := z.refresh(); err != nil {
		return report, err
	}
	return report, nil
}

// BuildSeries samples every catalog body across [startJD, endJD] into a
// series kernel and installs it. The cadence comes from WithSeriesStep, or
// the tier's validation step when unset. Returns the number of sample gaps.
func (z *Zenith) BuildSeries(ctx context.Context, startJD, endJD float64) (int, error) {
	if _, err := z.reconstructor(); err != nil {
		return 0, err
	}

	stepJD := z.opts.seriesStepJD
	if stepJD <= 0 {
		stepJD = z.opts.tier.StepJD()
	}

	b, err := series.NewBuilder(z.catalog, z.oracle, func(o *series.BuildOptions) {
		if z.opts.parallelism > 0 {
			o.Parallelism = z.opts.parallelism
		}
		o.RateLimit = z.opts.rateLimit
		o.Logger = z.opts.logger.Logger
	})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	s, err := b.Build(ctx, startJD, endJD, stepJD)
	duration := time.Since(start)

	gaps := 0
	if s != nil {
		gaps = s.GapCount()
	}
	z.opts.metricsCollector.RecordBuild("series", gaps, duration, err)
	z.opts.logger.LogBuild(ctx, "series", startJD, gaps, duration, err)
	if err != nil {
		return gaps, err
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return gaps, ErrClosed
	}
	z.series = s
	if err := z.refresh(); err != nil {
		return gaps, err
	}
	return gaps, nil
}

// Lookup reconstructs every catalog body at jd from the best available
// source: the snapshot kernel at its exact epoch, the series kernel inside
// its span, the oracle otherwise.
func (z *Zenith) Lookup(ctx context.Context, jd float64) (*search.Result, error) {
	recon, err := z.reconstructor()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := recon.Lookup(ctx, jd)
	duration := time.Since(start)

	source := "none"
	if res != nil {
		source = res.Source.String()
	}
	z.opts.metricsCollector.RecordSearch(source, duration, err)
	z.opts.logger.LogSearch(ctx, jd, source, err)
	return res, translateError(err)
}

// Nearest returns the closest instant to jd that a kernel can serve
// exactly, and its distance in days.
func (z *Zenith) Nearest(jd float64) (float64, float64, error) {
	recon, err := z.reconstructor()
	if err != nil {
		return 0, 0, err
	}
	nearest, dist, err := recon.Nearest(jd)
	return nearest, dist, translateError(err)
}

// Verify sweeps [startJD, endJD] comparing reconstruction against the
// oracle and reports every tolerance breach. Breaches are data, not errors.
func (z *Zenith) Verify(ctx context.Context, startJD, endJD float64, optFns ...func(*verify.Options)) (*verify.Report, error) {
	recon, err := z.reconstructor()
	if err != nil {
		return nil, err
	}

	base := func(o *verify.Options) {
		if z.opts.parallelism > 0 {
			o.Parallelism = z.opts.parallelism
		}
		o.Logger = z.opts.logger.Logger
	}
	v, err := verify.New(z.catalog, recon, z.oracle, append([]func(*verify.Options){base}, optFns...)...)
	if err != nil {
		return nil, err
	}

	report, err := v.Run(ctx, startJD, endJD)
	checks, worst, passed := 0, 0.0, false
	if report != nil {
		checks, worst, passed = report.Checks, report.WorstError(), report.Passed
	}
	z.opts.metricsCollector.RecordVerify(checks, worst, passed, err)
	z.opts.logger.LogVerify(ctx, checks, worst, passed, err)
	return report, err
}

// SaveSnapshot writes the current snapshot kernel to path atomically.
func (z *Zenith) SaveSnapshot(path string) error {
	z.mu.Lock()
	k := z.snapshot
	closed := z.closed
	z.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if k == nil {
		return fmt.Errorf("%w: no snapshot kernel built", ErrNoKernel)
	}

	store, err := persistence.NewStore(z.catalog, func(o *persistence.StoreOptions) {
		o.Logger = z.opts.logger.Logger
	})
	if err != nil {
		return err
	}
	return translateError(store.Write(path, k))
}

// LoadSnapshot reads a snapshot kernel from path and installs it. The file
// is validated strictly; a catalog or format mismatch leaves the engine
// unchanged.
func (z *Zenith) LoadSnapshot(path string) error {
	store, err := persistence.NewStore(z.catalog, func(o *persistence.StoreOptions) {
		o.Logger = z.opts.logger.Logger
	})
	if err != nil {
		return err
	}
	k, err := store.Read(path)
	if err != nil {
		return translateError(err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return ErrClosed
	}
	z.snapshot = k
	return z.refresh()
}

// SaveSeries writes the current series kernel to path using the
// configured block compression.
func (z *Zenith) SaveSeries(path string) error {
	z.mu.Lock()
	s := z.series
	closed := z.closed
	z.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s == nil {
		return fmt.Errorf("%w: no series kernel built", ErrNoKernel)
	}

	data, err := series.Marshal(s, z.opts.compression)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSeries reads a series kernel from path and installs it. A catalog
// hash mismatch leaves the engine unchanged.
func (z *Zenith) LoadSeries(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := series.Unmarshal(data)
	if err != nil {
		return translateError(err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return ErrClosed
	}
	prev := z.series
	z.series = s
	if err := z.refresh(); err != nil {
		z.series = prev
		_ = z.refresh()
		return err
	}
	return nil
}

// Publish marshals the current series kernel and publishes it to the
// configured blob store under name, then repoints CURRENT at it.
func (z *Zenith) Publish(ctx context.Context, name string) error {
	z.mu.Lock()
	s := z.series
	closed := z.closed
	z.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if z.opts.blobs == nil {
		return errors.New("zenith: no blob store configured")
	}
	if s == nil {
		return fmt.Errorf("%w: no series kernel built", ErrNoKernel)
	}

	start := time.Now()
	data, err := series.Marshal(s, z.opts.compression)
	if err == nil {
		err = blobstore.Publish(ctx, z.opts.blobs, name, data)
	}
	duration := time.Since(start)

	z.opts.metricsCollector.RecordPublish(len(data), duration, err)
	z.opts.logger.LogPublish(ctx, name, len(data), err)
	return translateError(err)
}

// LoadCurrent fetches the series kernel that CURRENT points at in the
// configured blob store and installs it.
func (z *Zenith) LoadCurrent(ctx context.Context) error {
	if z.opts.blobs == nil {
		return errors.New("zenith: no blob store configured")
	}

	_, data, err := blobstore.Current(ctx, z.opts.blobs)
	if err != nil {
		return translateError(err)
	}
	s, err := series.Unmarshal(data)
	if err != nil {
		return translateError(err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return ErrClosed
	}
	prev := z.series
	z.series = s
	if err := z.refresh(); err != nil {
		z.series = prev
		_ = z.refresh()
		return err
	}
	return nil
}

// Snapshot returns the currently installed snapshot kernel, or nil.
func (z *Zenith) Snapshot() *kernel.Kernel {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.snapshot
}

// Series returns the currently installed series kernel, or nil.
func (z *Zenith) Series() *series.Series {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.series
}

// Catalog returns the catalog the engine was built for.
func (z *Zenith) Catalog() body.Catalog { return z.catalog }

// Close marks the engine closed. Subsequent operations fail with ErrClosed.
// Close is idempotent.
func (z *Zenith) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.closed = true
	return nil
}
