package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveBuild("minute", 0, 120*time.Millisecond)
	c.ObserveBuild("minute", 2, 80*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.KernelBuilds.WithLabelValues("minute", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.KernelBuilds.WithLabelValues("minute", "partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.BodyFailures))

	count := histogramSampleCount(t, reg, "zenith_kernel_build_duration_seconds", map[string]string{"tier": "minute"})
	assert.Equal(t, uint64(2), count)
}

func TestObserveLookupAndVerify(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveLookup("snapshot", nil, time.Microsecond)
	c.ObserveLookup("oracle", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Lookups.WithLabelValues("snapshot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Lookups.WithLabelValues("oracle", "error")))

	c.ObserveVerify(true, 0.00004, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.VerifyRuns.WithLabelValues("pass")))
	assert.Equal(t, 0.00004, testutil.ToFloat64(c.VerifyWorstError))

	c.ObserveVerify(false, 1.5, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.VerifyRuns.WithLabelValues("fail")))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.VerifyWorstError))

	c.ObserveVerify(false, 0, errors.New("oracle down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.VerifyRuns.WithLabelValues("error")))
}

func TestNewCollectorIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)

	a.KernelReloads.Inc()
	b.KernelReloads.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(a.KernelReloads), "both collectors share the registered counter")
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveBuild("day", 0, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := new(strings.Builder)
	_, err = io.Copy(body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "zenith_kernel_builds_total")
}

func histogramSampleCount(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}
