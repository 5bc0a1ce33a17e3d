package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <julian-day>",
	Short: "Reconstruct every body's position at an instant",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().String("kernel", "", "snapshot kernel to reconstruct from")
	searchCmd.Flags().String("series", "", "series kernel to reconstruct from")
	searchCmd.Flags().Bool("nearest", false, "also print the nearest exactly servable instant")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jd, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid Julian day %q: %w", args[0], err)
	}

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

	res, err := z.Lookup(ctx, jd)
	if err != nil {
		return err
	}

	fmt.Printf("JD %.6f  source=%s  verified=%t  tolerance=%.2e deg\n",
		res.QueryJD, res.Source, res.Verified, res.Tolerance)
	for i, b := range z.Catalog() {
		fmt.Printf("  %-12s %12.6f\n", b.Name, res.Longitudes[i])
	}

	if nearest, _ := cmd.Flags().GetBool("nearest"); nearest {
		at, dist, err := z.Nearest(jd)
		if err != nil {
			return err
		}
		fmt.Printf("nearest exact instant: JD %.6f (%.6f days away)\n", at, dist)
	}
	return nil
}
