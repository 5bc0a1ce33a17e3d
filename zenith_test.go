package zenith

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithlab/zenith/blobstore"
	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/observability"
	"github.com/zenithlab/zenith/search"
	"github.com/zenithlab/zenith/testutil"
)

var _ MetricsCollector = (*observability.Collector)(nil)

const testEpoch = 2451545.0 // J2000

func testCatalog() body.Catalog {
	return body.Catalog{
		{ID: 1, Name: "alpha", MaxSpeed: 1.0},
		{ID: 2, Name: "beta", MaxSpeed: 13.5},
		{ID: 3, Name: "gamma", MaxSpeed: 0.2},
	}
}

func newTestEngine(t *testing.T, optFns ...Option) (*Zenith, *testutil.Oracle) {
	t.Helper()
	cat := testCatalog()
	orc := testutil.NewOracle(cat, testEpoch, 1)
	z, err := New(cat, orc, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = z.Close() })
	return z, orc
}

func TestNewValidation(t *testing.T) {
	cat := testCatalog()

	_, err := New(cat, nil)
	require.Error(t, err)

	bad := body.Catalog{{ID: 1, Name: "alpha", MaxSpeed: 0}}
	_, err = New(bad, testutil.NewOracle(cat, testEpoch, 1))
	require.ErrorIs(t, err, body.ErrInvalidMaxSpeed)

	_, err = New(cat, testutil.NewOracle(cat, testEpoch, 1), WithTier(codec.Tier(9)))
	require.Error(t, err)
}

func TestBuildSnapshotAndLookup(t *testing.T) {
	z, orc := newTestEngine(t)
	ctx := context.Background()

	report, err := z.BuildSnapshot(ctx, testEpoch)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	require.NotNil(t, z.Snapshot())

	res, err := z.Lookup(ctx, testEpoch)
	require.NoError(t, err)
	assert.Equal(t, search.SourceSnapshot, res.Source)
	assert.True(t, res.Verified)

	for i, b := range z.Catalog() {
		want := orc.Bodies[b.ID].Longitude
		assert.InDelta(t, 0, math.Abs(codec.ArcDistance(res.Longitudes[i], want)), codec.AngleStep)
	}
}

func TestLookupFallsBackToOracle(t *testing.T) {
	z, _ := newTestEngine(t)

	res, err := z.Lookup(context.Background(), testEpoch+3)
	require.NoError(t, err)
	assert.Equal(t, search.SourceOracle, res.Source)
	assert.True(t, res.Verified)
}

func TestBuildSeriesAndLookup(t *testing.T) {
	z, orc := newTestEngine(t, WithSeriesStep(1.0))
	ctx := context.Background()

	gaps, err := z.BuildSeries(ctx, testEpoch, testEpoch+10)
	require.NoError(t, err)
	assert.Zero(t, gaps)
	require.NotNil(t, z.Series())

	res, err := z.Lookup(ctx, testEpoch+4.5)
	require.NoError(t, err)
	assert.Equal(t, search.SourceSeries, res.Source)
	assert.True(t, res.Verified)

	for i, b := range z.Catalog() {
		m := orc.Bodies[b.ID]
		want := codec.NormalizeAngle(m.Longitude + m.Speed*4.5)
		assert.InDelta(t, 0, math.Abs(codec.ArcDistance(res.Longitudes[i], want)), 2*codec.AngleStep)
	}
}

func TestSaveLoadSnapshot(t *testing.T) {
	z, _ := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ephem.kernel")

	require.ErrorIs(t, z.SaveSnapshot(path), ErrNoKernel)

	_, err := z.BuildSnapshot(ctx, testEpoch)
	require.NoError(t, err)
	require.NoError(t, z.SaveSnapshot(path))

	loaded, _ := newTestEngine(t)
	require.NoError(t, loaded.LoadSnapshot(path))

	res, err := loaded.Lookup(ctx, testEpoch)
	require.NoError(t, err)
	assert.Equal(t, search.SourceSnapshot, res.Source)
}

func TestLoadSnapshotForeignCatalog(t *testing.T) {
	z, _ := newTestEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ephem.kernel")

	_, err := z.BuildSnapshot(ctx, testEpoch)
	require.NoError(t, err)
	require.NoError(t, z.SaveSnapshot(path))

	foreign := body.Catalog{
		{ID: 7, Name: "delta", MaxSpeed: 2.0},
		{ID: 8, Name: "epsilon", MaxSpeed: 1.0},
		{ID: 9, Name: "zeta", MaxSpeed: 0.5},
	}
	other, err := New(foreign, testutil.NewOracle(foreign, testEpoch, 2))
	require.NoError(t, err)

	err = other.LoadSnapshot(path)
	var incompatible *ErrIncompatibleKernel
	require.ErrorAs(t, err, &incompatible)
	assert.Nil(t, other.Snapshot())
}

func TestSaveLoadSeries(t *testing.T) {
	z, _ := newTestEngine(t, WithSeriesStep(1.0))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "span.zser")

	require.ErrorIs(t, z.SaveSeries(path), ErrNoKernel)

	_, err := z.BuildSeries(ctx, testEpoch, testEpoch+10)
	require.NoError(t, err)
	require.NoError(t, z.SaveSeries(path))

	loaded, _ := newTestEngine(t)
	require.NoError(t, loaded.LoadSeries(path))

	res, err := loaded.Lookup(ctx, testEpoch+5.5)
	require.NoError(t, err)
	assert.Equal(t, search.SourceSeries, res.Source)
}

func TestPublishAndLoadCurrent(t *testing.T) {
	store := blobstore.NewMemoryStore()
	z, _ := newTestEngine(t, WithBlobStore(store), WithSeriesStep(1.0))
	ctx := context.Background()

	require.ErrorIs(t, z.Publish(ctx, "k1.zser"), ErrNoKernel)

	_, err := z.BuildSeries(ctx, testEpoch, testEpoch+10)
	require.NoError(t, err)
	require.NoError(t, z.Publish(ctx, "k1.zser"))

	consumer, _ := newTestEngine(t, WithBlobStore(store))
	require.NoError(t, consumer.LoadCurrent(ctx))

	res, err := consumer.Lookup(ctx, testEpoch+2.25)
	require.NoError(t, err)
	assert.Equal(t, search.SourceSeries, res.Source)
}

func TestPublishWithoutBlobStore(t *testing.T) {
	z, _ := newTestEngine(t)
	require.Error(t, z.Publish(context.Background(), "k1.zser"))
	require.Error(t, z.LoadCurrent(context.Background()))
}

func TestLoadCurrentMissing(t *testing.T) {
	z, _ := newTestEngine(t, WithBlobStore(blobstore.NewMemoryStore()))
	err := z.LoadCurrent(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerify(t *testing.T) {
	z, _ := newTestEngine(t, WithSeriesStep(1.0))
	ctx := context.Background()

	_, err := z.BuildSeries(ctx, testEpoch, testEpoch+10)
	require.NoError(t, err)

	report, err := z.Verify(ctx, testEpoch, testEpoch+10)
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Exceeded)
	assert.Positive(t, report.Checks)
}

func TestMetricsCollector(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	z, _ := newTestEngine(t, WithMetricsCollector(metrics), WithSeriesStep(1.0))
	ctx := context.Background()

	_, err := z.BuildSnapshot(ctx, testEpoch)
	require.NoError(t, err)
	_, err = z.Lookup(ctx, testEpoch)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.EqualValues(t, 1, stats.BuildCount)
	assert.EqualValues(t, 0, stats.BuildErrors)
	assert.EqualValues(t, 1, stats.SearchCount)
}

func TestClosedEngine(t *testing.T) {
	z, _ := newTestEngine(t)
	require.NoError(t, z.Close())
	require.NoError(t, z.Close())

	_, err := z.Lookup(context.Background(), testEpoch)
	require.ErrorIs(t, err, ErrClosed)
	_, err = z.BuildSnapshot(context.Background(), testEpoch)
	require.ErrorIs(t, err, ErrClosed)
	_, _, err = z.Nearest(testEpoch)
	require.ErrorIs(t, err, ErrClosed)
}
