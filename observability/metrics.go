// Package observability bundles Prometheus metrics for the kernel pipeline:
// build, publish, lookup and verification counters with latency histograms,
// plus an HTTP handler to expose them.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the pipeline's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	KernelBuilds  *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
	BodyFailures  prometheus.Counter

	Lookups        *prometheus.CounterVec
	LookupDuration prometheus.Histogram

	VerifyRuns       *prometheus.CounterVec
	VerifyWorstError prometheus.Gauge

	Publishes      *prometheus.CounterVec
	PublishedBytes prometheus.Counter

	KernelReloads prometheus.Counter
}

// NewCollector registers the pipeline metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registering against the same registry returns the existing collectors
// instead of failing.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	builds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenith_kernel_builds_total",
		Help: "Kernel builds, labeled by precision tier and outcome.",
	}, []string{"tier", "outcome"}), "zenith_kernel_builds_total")
	if err != nil {
		return nil, err
	}

	buildDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zenith_kernel_build_duration_seconds",
		Help:    "Kernel build latency in seconds, labeled by precision tier.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"tier"}), "zenith_kernel_build_duration_seconds")
	if err != nil {
		return nil, err
	}

	bodyFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zenith_body_lookup_failures_total",
		Help: "Body lookups that failed after fallback and were written as sentinels.",
	}), "zenith_body_lookup_failures_total")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenith_lookups_total",
		Help: "Position lookups, labeled by serving source (snapshot, series, oracle) and outcome.",
	}, []string{"source", "outcome"}), "zenith_lookups_total")
	if err != nil {
		return nil, err
	}

	lookupDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zenith_lookup_duration_seconds",
		Help:    "Position lookup latency in seconds.",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1, 10},
	}), "zenith_lookup_duration_seconds")
	if err != nil {
		return nil, err
	}

	verifyRuns, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenith_verify_runs_total",
		Help: "Verification runs, labeled by outcome (pass, fail, error).",
	}, []string{"outcome"}), "zenith_verify_runs_total")
	if err != nil {
		return nil, err
	}

	verifyWorst, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zenith_verify_worst_error_degrees",
		Help: "Worst per-body reconstruction error observed by the latest verification run.",
	}), "zenith_verify_worst_error_degrees")
	if err != nil {
		return nil, err
	}

	publishes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zenith_kernel_publishes_total",
		Help: "Kernel publications, labeled by outcome.",
	}, []string{"outcome"}), "zenith_kernel_publishes_total")
	if err != nil {
		return nil, err
	}

	publishedBytes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zenith_kernel_published_bytes_total",
		Help: "Total bytes of successfully published kernels.",
	}), "zenith_kernel_published_bytes_total")
	if err != nil {
		return nil, err
	}

	reloads, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zenith_kernel_reloads_total",
		Help: "Kernel reloads triggered by on-disk changes.",
	}), "zenith_kernel_reloads_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		KernelBuilds:     builds,
		BuildDuration:    buildDuration,
		BodyFailures:     bodyFailures,
		Lookups:          lookups,
		LookupDuration:   lookupDuration,
		VerifyRuns:       verifyRuns,
		VerifyWorstError: verifyWorst,
		Publishes:        publishes,
		PublishedBytes:   publishedBytes,
		KernelReloads:    reloads,
	}, nil
}

// ObserveBuild records one kernel build.
func (c *Collector) ObserveBuild(tier string, failures int, duration time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if failures > 0 {
		outcome = "partial"
	}
	c.KernelBuilds.WithLabelValues(tier, outcome).Inc()
	c.BuildDuration.WithLabelValues(tier).Observe(duration.Seconds())
	c.BodyFailures.Add(float64(failures))
}

// ObserveLookup records one position lookup.
func (c *Collector) ObserveLookup(source string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Lookups.WithLabelValues(source, outcome).Inc()
	c.LookupDuration.Observe(duration.Seconds())
}

// ObserveVerify records one verification run.
func (c *Collector) ObserveVerify(passed bool, worstError float64, err error) {
	if c == nil {
		return
	}
	switch {
	case err != nil:
		c.VerifyRuns.WithLabelValues("error").Inc()
	case passed:
		c.VerifyRuns.WithLabelValues("pass").Inc()
		c.VerifyWorstError.Set(worstError)
	default:
		c.VerifyRuns.WithLabelValues("fail").Inc()
		c.VerifyWorstError.Set(worstError)
	}
}

// ObservePublish records one kernel publication.
func (c *Collector) ObservePublish(size int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.Publishes.WithLabelValues("error").Inc()
		return
	}
	c.Publishes.WithLabelValues("ok").Inc()
	c.PublishedBytes.Add(float64(size))
}

// RecordBuild adapts ObserveBuild to the engine's collector interface.
func (c *Collector) RecordBuild(tier string, failures int, duration time.Duration, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.KernelBuilds.WithLabelValues(tier, "error").Inc()
		return
	}
	c.ObserveBuild(tier, failures, duration)
}

// RecordSearch adapts ObserveLookup to the engine's collector interface.
func (c *Collector) RecordSearch(source string, duration time.Duration, err error) {
	c.ObserveLookup(source, err, duration)
}

// RecordVerify adapts ObserveVerify to the engine's collector interface.
func (c *Collector) RecordVerify(checks int, worst float64, passed bool, err error) {
	c.ObserveVerify(passed, worst, err)
}

// RecordPublish adapts ObservePublish to the engine's collector interface.
func (c *Collector) RecordPublish(size int, duration time.Duration, err error) {
	c.ObservePublish(size, err)
}

// Handler exposes the collector's registry over HTTP in Prometheus format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
