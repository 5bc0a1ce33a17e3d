package zenith_test

import (
	"context"
	"fmt"
	"log"

	"github.com/zenithlab/zenith"
	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/testutil"
)

// Example demonstrates building a snapshot kernel and reconstructing
// positions from it.
func Example() {
	ctx := context.Background()
	epoch := 2451545.0 // J2000

	cat := body.Catalog{
		{ID: 1, Name: "alpha", MaxSpeed: 1.0},
		{ID: 2, Name: "beta", MaxSpeed: 13.5},
	}
	orc := testutil.NewOracle(cat, epoch, 42)

	z, err := zenith.New(cat, orc, zenith.WithTier(codec.TierMinute))
	if err != nil {
		log.Fatal(err)
	}
	defer z.Close()

	if _, err := z.BuildSnapshot(ctx, epoch); err != nil {
		log.Fatal(err)
	}

	res, err := z.Lookup(ctx, epoch)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.Source, len(res.Longitudes))
	// Output: snapshot 2
}

// Example_series demonstrates a stepped series kernel with interpolated
// lookups anywhere inside its span.
func Example_series() {
	ctx := context.Background()
	epoch := 2451545.0

	cat := body.Catalog{{ID: 1, Name: "alpha", MaxSpeed: 1.0}}
	orc := testutil.NewOracle(cat, epoch, 42)

	z, err := zenith.New(cat, orc, zenith.WithSeriesStep(0.5))
	if err != nil {
		log.Fatal(err)
	}
	defer z.Close()

	if _, err := z.BuildSeries(ctx, epoch, epoch+30); err != nil {
		log.Fatal(err)
	}

	res, err := z.Lookup(ctx, epoch+12.75)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.Source, res.Verified)
	// Output: series true
}
