package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zenithlab/zenith/blobstore"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a series kernel to the configured blob store",
	Long: "Publish uploads a series kernel and repoints CURRENT at it, making\n" +
		"it the kernel consumers load. The store backend (local directory,\n" +
		"S3, MinIO) comes from config.",
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("in", "", "series kernel file to publish (required)")
	publishCmd.Flags().String("name", "", "published kernel name (default: input file name)")
	_ = publishCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	in, _ := cmd.Flags().GetString("in")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(in)
	}

	ctx := cmd.Context()
	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("no blob store configured; set store.dir or a remote backend")
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if err := blobstore.Publish(ctx, store, name, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "published %s (%d bytes); CURRENT now points at it\n", name, len(data))
	return nil
}
