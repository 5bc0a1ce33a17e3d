package zenith

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/zenithlab/zenith/blobstore"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/kernel"
	"github.com/zenithlab/zenith/series"
)

type options struct {
	tier             codec.Tier
	tzOffsetSec      int32
	location         *kernel.Geo
	parallelism      int
	rateLimit        rate.Limit
	seriesStepJD     float64
	compression      series.Compression
	blobs            blobstore.BlobStore
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures engine construction.
type Option func(*options)

// WithTier configures the precision tier of built snapshot kernels.
// Defaults to codec.TierMinute.
func WithTier(t codec.Tier) Option {
	return func(o *options) {
		o.tier = t
	}
}

// WithTZOffset configures the timezone offset (seconds east of UTC)
// stamped into kernel headers.
func WithTZOffset(sec int32) Option {
	return func(o *options) {
		o.tzOffsetSec = sec
	}
}

// WithLocation configures an observer location for topocentric kernels.
// Pass nil for geocentric positions (the default).
func WithLocation(g *kernel.Geo) Option {
	return func(o *options) {
		o.location = g
	}
}

// WithParallelism bounds concurrent oracle calls during builds and
// verification. Defaults to GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// WithRateLimit throttles oracle calls. Useful when the oracle fronts a
// shared or remote computation service. Zero means unlimited.
func WithRateLimit(limit rate.Limit) Option {
	return func(o *options) {
		o.rateLimit = limit
	}
}

// WithSeriesStep configures the sampling cadence of built series kernels,
// in Julian days. Defaults to the tier's validation step.
func WithSeriesStep(stepJD float64) Option {
	return func(o *options) {
		o.seriesStepJD = stepJD
	}
}

// WithCompression configures the block compression of published series
// kernels. Defaults to series.CompressionZSTD.
func WithCompression(c series.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithBlobStore configures the store used by Publish and LoadCurrent.
// Without it publication is disabled.
func WithBlobStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobs = s
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		tier:             codec.TierMinute,
		compression:      series.CompressionZSTD,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
