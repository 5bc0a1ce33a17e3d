package verify

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/search"
	"github.com/zenithlab/zenith/series"
	"github.com/zenithlab/zenith/testutil"
)

const testEpoch = 2451545.0

func verifyCatalog() body.Catalog {
	return body.Catalog{
		{ID: 1, Name: "alpha", MaxSpeed: 1.0},
		{ID: 2, Name: "beta", MaxSpeed: 13.5},
	}
}

func seriesReconstructor(t *testing.T, cat body.Catalog, orc *testutil.Oracle, days float64) *search.Reconstructor {
	t.Helper()
	sb, err := series.NewBuilder(cat, orc)
	require.NoError(t, err)
	s, err := sb.Build(context.Background(), testEpoch, testEpoch+days, 1.0)
	require.NoError(t, err)

	r, err := search.NewReconstructor(cat, nil, s, orc)
	require.NoError(t, err)
	return r
}

func TestRunSeriesWithinTolerance(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 1)
	r := seriesReconstructor(t, cat, orc, 30)

	v, err := New(cat, r, orc, func(o *Options) {
		o.Passes = 3
		o.PointsPerPass = 50
		// Interpolation stacks quantization error from four control
		// points.
		o.Tolerance = 2 * codec.AngleStep
	})
	require.NoError(t, err)

	report, err := v.Run(context.Background(), testEpoch, testEpoch+30)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, 150, report.Checks)
	assert.Empty(t, report.Exceeded)
	require.Len(t, report.MaxError, 2)
	assert.Less(t, report.WorstError(), 2*codec.AngleStep)
	assert.Positive(t, report.Duration)
}

func TestRunDetectsDrift(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 2)
	r := seriesReconstructor(t, cat, orc, 30)

	// Shift one body after the series was built: its reconstruction now
	// trails the oracle by a fixed degree.
	m := orc.Bodies[2]
	m.Longitude += 1.0
	orc.Bodies[2] = m

	v, err := New(cat, r, orc, func(o *Options) {
		o.Passes = 2
		o.PointsPerPass = 20
	})
	require.NoError(t, err)

	report, err := v.Run(context.Background(), testEpoch, testEpoch+30)
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.NotEmpty(t, report.Exceeded)
	assert.InDelta(t, 1.0, report.MaxError[1], 0.01)
	assert.Less(t, report.MaxError[0], codec.AngleStep+1e-12, "unshifted body stays in tolerance")

	for _, s := range report.Exceeded {
		assert.Equal(t, 2, s.BodyID)
		assert.InDelta(t, 1.0, s.Magnitude, 0.01)
	}

	sorted := sort.SliceIsSorted(report.Exceeded, func(i, j int) bool {
		a, b := report.Exceeded[i], report.Exceeded[j]
		if a.JD != b.JD {
			return a.JD < b.JD
		}
		return a.BodyID < b.BodyID
	})
	assert.True(t, sorted, "exceeded samples carry a canonical order")
}

func TestRunCancelled(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 3)
	r := seriesReconstructor(t, cat, orc, 10)

	v, err := New(cat, r, orc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.Run(ctx, testEpoch, testEpoch+10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidation(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 4)
	r := seriesReconstructor(t, cat, orc, 5)

	_, err := New(cat, r, orc, func(o *Options) { o.Passes = 0 })
	assert.Error(t, err)
	_, err = New(cat, r, orc, func(o *Options) { o.PointsPerPass = 0 })
	assert.Error(t, err)
	_, err = New(cat, r, orc, func(o *Options) { o.Tolerance = -1 })
	assert.Error(t, err)
	_, err = New(body.Catalog{}, r, orc)
	assert.Error(t, err)
}

func TestRunRejectsInvertedSpan(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 5)
	r := seriesReconstructor(t, cat, orc, 5)

	v, err := New(cat, r, orc)
	require.NoError(t, err)
	_, err = v.Run(context.Background(), testEpoch+5, testEpoch)
	assert.Error(t, err)
}

func TestRunRetriesFallbackOnPrimaryFailure(t *testing.T) {
	cat := body.Catalog{
		{ID: 1, Name: "alpha", MaxSpeed: 1.0},
		{ID: 2, Name: "beta", MaxSpeed: 13.5, SupportsFallback: true, FallbackID: 902},
	}
	orc := testutil.NewOracle(cat, testEpoch, 6)
	r := seriesReconstructor(t, cat, orc, 10)

	// Primary goes dark after the series was built; the fallback still
	// answers with identical motion.
	orc.FailBody(2)

	v, err := New(cat, r, orc, func(o *Options) {
		o.Passes = 2
		o.PointsPerPass = 20
		o.Tolerance = 2 * codec.AngleStep
	})
	require.NoError(t, err)

	report, err := v.Run(context.Background(), testEpoch, testEpoch+10)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Zero(t, report.OracleFailures)
	assert.Equal(t, 40, report.Checks)
}

func TestRunAggregatesOracleFailures(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 7)
	r := seriesReconstructor(t, cat, orc, 10)

	// No fallback for beta, so every sample of it goes unanswered. The
	// run still finishes and measures the healthy body.
	orc.FailBody(2)

	v, err := New(cat, r, orc, func(o *Options) {
		o.Passes = 2
		o.PointsPerPass = 10
		o.Tolerance = 2 * codec.AngleStep
	})
	require.NoError(t, err)

	report, err := v.Run(context.Background(), testEpoch, testEpoch+10)
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, 20, report.OracleFailures)
	assert.Equal(t, 20, report.Checks)
	assert.Empty(t, report.Exceeded)
	assert.Less(t, report.MaxError[0], 2*codec.AngleStep)
}

func TestRunDeterministic(t *testing.T) {
	cat := verifyCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 8)
	r := seriesReconstructor(t, cat, orc, 30)

	// Drift one body so the breach list is non-empty.
	m := orc.Bodies[2]
	m.Longitude += 0.5
	orc.Bodies[2] = m

	v, err := New(cat, r, orc, func(o *Options) {
		o.Passes = 3
		o.PointsPerPass = 40
	})
	require.NoError(t, err)

	first, err := v.Run(context.Background(), testEpoch, testEpoch+30)
	require.NoError(t, err)
	second, err := v.Run(context.Background(), testEpoch, testEpoch+30)
	require.NoError(t, err)

	require.NotEmpty(t, first.Exceeded)
	assert.Equal(t, first.Checks, second.Checks)
	assert.Equal(t, first.Exceeded, second.Exceeded)
	assert.Equal(t, first.MaxError, second.MaxError)
}
