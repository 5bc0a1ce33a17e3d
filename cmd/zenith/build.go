package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a snapshot kernel at an epoch and write it to disk",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().Float64("epoch", 0, "base epoch as a Julian day (required)")
	buildCmd.Flags().String("out", "", "output kernel path (required)")
	buildCmd.Flags().Bool("topocentric", false, "build a topocentric kernel")
	buildCmd.Flags().Float64("lat", 0, "observer latitude for topocentric kernels")
	buildCmd.Flags().Float64("lon", 0, "observer longitude for topocentric kernels")
	_ = buildCmd.MarkFlagRequired("epoch")
	_ = buildCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	epoch, _ := cmd.Flags().GetFloat64("epoch")
	out, _ := cmd.Flags().GetString("out")
	topocentric, _ := cmd.Flags().GetBool("topocentric")
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")

	ctx := cmd.Context()
	z, err := newEngine(ctx, cfg, withLocation(lat, lon, topocentric)...)
	if err != nil {
		return err
	}
	defer z.Close()

	report, err := z.BuildSnapshot(ctx, epoch)
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "body %d unresolved: %v\n", f.BodyID, f.Err)
	}

	if err := z.SaveSnapshot(out); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "kernel written to %s (%d bodies, %d failed) in %s\n",
		out, len(z.Catalog()), len(report.Failures), report.Duration.Round(roundUnit))
	return nil
}
