// Package zenith provides a compact ephemeris kernel engine for Go.
//
// Zenith samples celestial body positions from a pluggable oracle into
// fixed-layout binary kernels, reconstructs positions from those kernels,
// and statistically verifies a kernel against its oracle.
//
// # Quick Start
//
//	ctx := context.Background()
//	z, _ := zenith.New(body.Default(), myOracle)
//	defer z.Close()
//
//	// Snapshot kernel: every body at one instant.
//	report, _ := z.BuildSnapshot(ctx, 2451545.0)
//
//	// Series kernel: stepped samples over a span, cubic interpolation.
//	z.BuildSeries(ctx, 2451545.0, 2451575.0)
//
//	// Reconstruct from whatever the engine holds; falls back to the
//	// oracle when no kernel covers the instant.
//	res, _ := z.Lookup(ctx, 2451550.25)
//	fmt.Println(res.Source, res.Longitudes)
//
// # Kernel Tiers
//
// Three precision tiers trade size against reconstruction fidelity:
//
//	zenith.New(cat, orc, zenith.WithTier(codec.TierDay))     // 4-byte records
//	zenith.New(cat, orc, zenith.WithTier(codec.TierMinute))  // +speed, 6 bytes
//	zenith.New(cat, orc, zenith.WithTier(codec.TierSecond))  // +speed, 6 bytes
//
// # Persistence and Publication
//
// Snapshot kernels round-trip through persistence.Store (atomic replace,
// strict validation, mmap reads). Series kernels publish to any
// blobstore.BlobStore (local directory, memory, S3, MinIO):
//
//	z.SaveSnapshot("ephem.kernel")
//	z.Publish(ctx, "kernel-2451545.zser")
//	z.LoadCurrent(ctx) // re-open whatever CURRENT points at
//
// # Verification
//
// Verify sweeps the span in interleaved phase-shifted passes and reports
// every instant where reconstruction diverges from the oracle beyond
// tolerance:
//
//	rep, _ := z.Verify(ctx, 2451545.0, 2451575.0)
//	if !rep.Passed {
//	    for _, e := range rep.Exceeded {
//	        fmt.Println(e.JD, e.BodyID, e.Magnitude)
//	    }
//	}
//
// # Observability
//
// Logging and metrics are opt-in:
//
//	z, _ := zenith.New(cat, orc,
//	    zenith.WithLogger(zenith.NewJSONLogger(slog.LevelInfo)),
//	    zenith.WithMetricsCollector(collector),
//	)
//
// The observability package provides a Prometheus-backed MetricsCollector.
package zenith
