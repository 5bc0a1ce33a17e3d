package sgp4

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithlab/zenith/oracle"
)

// ISS (ZARYA) elements, epoch 2008-09-20. Well-known reference TLE.
const (
	issTLE1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issTLE2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

// JD for 2008-09-21 00:00:00 UTC, shortly after the TLE epoch.
const issJD = 2454730.5

func TestCalcUnknownBody(t *testing.T) {
	o := New()
	_, err := o.Calc(context.Background(), issJD, 42, 0)
	require.Error(t, err)

	var oerr *oracle.Error
	assert.ErrorAs(t, err, &oerr)
	assert.Equal(t, 42, oerr.BodyID)
}

func TestCalcPropagates(t *testing.T) {
	o := New()
	o.Register(25544, issTLE1, issTLE2)

	pos, err := o.Calc(context.Background(), issJD, 25544, oracle.FlagSpeed)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, pos.Longitude, 0.0)
	assert.Less(t, pos.Longitude, 360.0)
	// LEO right ascension sweeps a full turn per ~92 minute orbit.
	assert.NotZero(t, pos.Speed)
}

func TestCalcDeterministic(t *testing.T) {
	o := New()
	o.Register(25544, issTLE1, issTLE2)

	a, err := o.Calc(context.Background(), issJD, 25544, oracle.FlagSpeed)
	require.NoError(t, err)
	b, err := o.Calc(context.Background(), issJD, 25544, oracle.FlagSpeed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalcHonorsCancellation(t *testing.T) {
	o := New()
	o.Register(25544, issTLE1, issTLE2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Calc(ctx, issJD, 25544, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
