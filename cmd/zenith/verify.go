package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenithlab/zenith/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Statistically verify kernels against the oracle",
	Long: "Verify sweeps the span in interleaved passes, reconstructing each\n" +
		"sampled instant and comparing it against a direct oracle call.\n" +
		"Tolerance breaches are reported as data; they do not fail the command.",
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("kernel", "", "snapshot kernel under test")
	verifyCmd.Flags().String("series", "", "series kernel under test")
	verifyCmd.Flags().Float64("start", 0, "span start as a Julian day (required)")
	verifyCmd.Flags().Float64("end", 0, "span end as a Julian day (required)")
	_ = verifyCmd.MarkFlagRequired("start")
	_ = verifyCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	start, _ := cmd.Flags().GetFloat64("start")
	end, _ := cmd.Flags().GetFloat64("end")

	ctx := cmd.Context()
	z, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer z.Close()

	if path, _ := cmd.Flags().GetString("kernel"); path != "" {
		if err := z.LoadSnapshot(path); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("series"); path != "" {
		if err := z.LoadSeries(path); err != nil {
			return err
		}
	}

	report, err := z.Verify(ctx, start, end, func(o *verify.Options) {
		if cfg.Verify.Passes > 0 {
			o.Passes = cfg.Verify.Passes
		}
		if cfg.Verify.PointsPerPass > 0 {
			o.PointsPerPass = cfg.Verify.PointsPerPass
		}
		if cfg.Verify.Tolerance > 0 {
			o.Tolerance = cfg.Verify.Tolerance
		}
	})
	if err != nil {
		return err
	}

	status := "PASS"
	if !report.Passed {
		status = "FAIL"
	}
	perSec := float64(report.Checks) / report.Duration.Seconds()
	fmt.Printf("%s  checks=%d  worst=%.6f deg  breaches=%d  oracle_failures=%d  (%.0f checks/s)\n",
		status, report.Checks, report.WorstError(), len(report.Exceeded), report.OracleFailures, perSec)

	for i, b := range z.Catalog() {
		fmt.Printf("  %-12s max error %.6f deg\n", b.Name, report.MaxError[i])
	}
	for _, e := range report.Exceeded {
		fmt.Printf("  breach: JD %.6f body %d error %.6f deg\n", e.JD, e.BodyID, e.Magnitude)
	}
	return nil
}
