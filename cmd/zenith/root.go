package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/zenithlab/zenith"
	"github.com/zenithlab/zenith/blobstore"
	zeniths3 "github.com/zenithlab/zenith/blobstore/s3"
	"github.com/zenithlab/zenith/body"
	"github.com/zenithlab/zenith/codec"
	"github.com/zenithlab/zenith/config"
	"github.com/zenithlab/zenith/kernel"
	"github.com/zenithlab/zenith/observability"
	"github.com/zenithlab/zenith/series"

	miniostore "github.com/zenithlab/zenith/blobstore/minio"
)

var rootCmd = &cobra.Command{
	Use:   "zenith",
	Short: "Compact ephemeris kernel engine",
	Long: "Zenith builds, inspects, verifies and publishes compact binary kernels\n" +
		"of quantized celestial body positions.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default zenith.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("tle", "", "TLE file backing the SGP4 oracle")
	rootCmd.PersistentFlags().Int64("seed", 1, "seed for the synthetic oracle when no TLE file is given")
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("zenith")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("ZENITH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults apply.
	_ = viper.ReadInConfig()
}

func loadConfig() (config.Config, error) {
	if lvl, _ := rootCmd.Flags().GetString("log-level"); lvl != "" {
		viper.Set("log_level", lvl)
	}
	return config.Load()
}

func newLogger(cfg config.Config) *zenith.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return zenith.NewTextLogger(level)
}

// newEngine assembles a Zenith engine from the loaded config and the
// oracle flags. The catalog is the default 20-body reference catalog.
func newEngine(ctx context.Context, cfg config.Config, extra ...zenith.Option) (*zenith.Zenith, error) {
	orc, err := newOracle(body.Default())
	if err != nil {
		return nil, err
	}

	tier, err := codec.ParseTier(cfg.Build.Tier)
	if err != nil {
		return nil, err
	}
	comp, err := series.ParseCompression(cfg.Build.Compression)
	if err != nil {
		return nil, err
	}

	opts := []zenith.Option{
		zenith.WithTier(tier),
		zenith.WithTZOffset(int32(cfg.Build.TZOffsetSec)),
		zenith.WithParallelism(cfg.Build.Parallelism),
		zenith.WithSeriesStep(cfg.Build.SeriesStepJD),
		zenith.WithCompression(comp),
		zenith.WithLogger(newLogger(cfg)),
	}
	if cfg.Build.RateLimit > 0 {
		opts = append(opts, zenith.WithRateLimit(rate.Limit(cfg.Build.RateLimit)))
	}
	if cfg.MetricsAddr != "" {
		collector, err := observability.NewCollector(nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, zenith.WithMetricsCollector(collector))
		go serveMetrics(cfg.MetricsAddr, collector)
	}
	if store, err := newBlobStore(ctx, cfg); err != nil {
		return nil, err
	} else if store != nil {
		opts = append(opts, zenith.WithBlobStore(store))
	}
	opts = append(opts, extra...)

	return zenith.New(body.Default(), orc, opts...)
}

func serveMetrics(addr string, collector *observability.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics listener: %v\n", err)
	}
}

// newBlobStore builds the configured kernel store. Returns nil for the
// local backend when its directory is unset.
func newBlobStore(ctx context.Context, cfg config.Config) (blobstore.BlobStore, error) {
	switch cfg.Store.Backend {
	case "local":
		if cfg.Store.Dir == "" {
			return nil, nil
		}
		return blobstore.NewLocalStore(cfg.Store.Dir)

	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		store := zeniths3.NewStore(awss3.NewFromConfig(awsCfg), cfg.Store.Bucket, cfg.Store.Prefix)
		if cfg.Store.CommitTable == "" {
			return store, nil
		}
		baseURI := "s3://" + cfg.Store.Bucket + "/" + cfg.Store.Prefix
		return zeniths3.NewCommitStore(store, dynamodb.NewFromConfig(awsCfg), cfg.Store.CommitTable, baseURI), nil

	case "minio":
		client, err := minio.New(cfg.Store.Endpoint, &minio.Options{
			Creds: miniocreds.NewEnvMinio(),
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return miniostore.NewStore(client, cfg.Store.Bucket, cfg.Store.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

const roundUnit = time.Millisecond

func withLocation(lat, lon float64, topocentric bool) []zenith.Option {
	if !topocentric {
		return nil
	}
	return []zenith.Option{zenith.WithLocation(&kernel.Geo{Lat: lat, Lon: lon})}
}
