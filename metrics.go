package zenith

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// observability package ships a Prometheus-backed implementation.
type MetricsCollector interface {
	// RecordBuild is called after each kernel build (snapshot or series).
	// failures is the number of bodies that could not be resolved,
	// duration is the total time taken, err is nil if the build succeeded.
	RecordBuild(tier string, failures int, duration time.Duration, err error)

	// RecordSearch is called after each reconstruction lookup.
	// source names the path that served the query (snapshot, series,
	// oracle), duration is the time taken, err is nil if successful.
	RecordSearch(source string, duration time.Duration, err error)

	// RecordVerify is called after each verification run.
	// checks is the number of instants sampled, worst is the largest
	// observed error in degrees, passed reports whether every check was
	// within tolerance.
	RecordVerify(checks int, worst float64, passed bool, err error)

	// RecordPublish is called after each kernel publication.
	RecordPublish(size int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(string, time.Duration, error)     {}
func (NoopMetricsCollector) RecordVerify(int, float64, bool, error)        {}
func (NoopMetricsCollector) RecordPublish(int, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount        atomic.Int64
	BuildErrors       atomic.Int64
	BuildFailedBodies atomic.Int64
	BuildTotalNanos   atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	VerifyCount       atomic.Int64
	VerifyFailed      atomic.Int64
	VerifyChecks      atomic.Int64
	PublishCount      atomic.Int64
	PublishErrors     atomic.Int64
	PublishBytes      atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(tier string, failures int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildFailedBodies.Add(int64(failures))
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(source string, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordVerify implements MetricsCollector.
func (b *BasicMetricsCollector) RecordVerify(checks int, worst float64, passed bool, err error) {
	b.VerifyCount.Add(1)
	b.VerifyChecks.Add(int64(checks))
	if err != nil || !passed {
		b.VerifyFailed.Add(1)
	}
}

// RecordPublish implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPublish(size int, duration time.Duration, err error) {
	b.PublishCount.Add(1)
	if err != nil {
		b.PublishErrors.Add(1)
		return
	}
	b.PublishBytes.Add(int64(size))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:        b.BuildCount.Load(),
		BuildErrors:       b.BuildErrors.Load(),
		BuildFailedBodies: b.BuildFailedBodies.Load(),
		BuildAvgNanos:     avgNanos(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchAvgNanos:    avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		VerifyCount:       b.VerifyCount.Load(),
		VerifyFailed:      b.VerifyFailed.Load(),
		VerifyChecks:      b.VerifyChecks.Load(),
		PublishCount:      b.PublishCount.Load(),
		PublishErrors:     b.PublishErrors.Load(),
		PublishBytes:      b.PublishBytes.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount        int64
	BuildErrors       int64
	BuildFailedBodies int64
	BuildAvgNanos     int64
	SearchCount       int64
	SearchErrors      int64
	SearchAvgNanos    int64
	VerifyCount       int64
	VerifyFailed      int64
	VerifyChecks      int64
	PublishCount      int64
	PublishErrors     int64
	PublishBytes      int64
}
