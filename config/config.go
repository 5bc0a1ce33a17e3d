// Package config holds runtime configuration for the zenith CLI and
// services. Values are populated from zenith.yaml, ZENITH_* env vars, and
// CLI flags, in ascending precedence.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// StoreConfig selects and parameterizes the kernel blob store.
type StoreConfig struct {
	// Backend is one of "local", "s3" or "minio".
	Backend string `mapstructure:"backend"`
	// Dir is the kernel directory for the local backend.
	Dir string `mapstructure:"dir"`
	// Bucket and Prefix locate kernels on the object-store backends.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	// Endpoint is the MinIO endpoint, host:port.
	Endpoint string `mapstructure:"endpoint"`
	// CommitTable enables the DynamoDB commit log on the s3 backend.
	CommitTable string `mapstructure:"commit_table"`
}

// BuildConfig parameterizes kernel and series builds.
type BuildConfig struct {
	// Tier is the precision tier: "day", "minute" or "second".
	Tier string `mapstructure:"tier"`
	// Parallelism bounds concurrent oracle calls; 0 means GOMAXPROCS.
	Parallelism int `mapstructure:"parallelism"`
	// RateLimit caps oracle calls per second; 0 means unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
	// TZOffsetSec is stored in the kernel header.
	TZOffsetSec int `mapstructure:"tz_offset_sec"`
	// SeriesStepJD is the sampling cadence for series builds, in days.
	SeriesStepJD float64 `mapstructure:"series_step_jd"`
	// Compression is the series block compression: "none", "lz4" or
	// "zstd".
	Compression string `mapstructure:"compression"`
}

// VerifyConfig parameterizes verification runs.
type VerifyConfig struct {
	Passes        int     `mapstructure:"passes"`
	PointsPerPass int     `mapstructure:"points_per_pass"`
	Tolerance     float64 `mapstructure:"tolerance"`
}

// Config is the root configuration.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log_level"`
	// MetricsAddr exposes Prometheus metrics when non-empty, e.g.
	// ":9090".
	MetricsAddr string `mapstructure:"metrics_addr"`

	Store  StoreConfig  `mapstructure:"store"`
	Build  BuildConfig  `mapstructure:"build"`
	Verify VerifyConfig `mapstructure:"verify"`
}

// Load reads configuration from viper, applying built-in defaults for any
// value not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("metrics_addr", "")

	viper.SetDefault("store.backend", "local")
	viper.SetDefault("store.dir", "kernels")
	viper.SetDefault("store.bucket", "")
	viper.SetDefault("store.prefix", "")
	viper.SetDefault("store.endpoint", "")
	viper.SetDefault("store.commit_table", "")

	viper.SetDefault("build.tier", "minute")
	viper.SetDefault("build.parallelism", 0)
	viper.SetDefault("build.rate_limit", 0.0)
	viper.SetDefault("build.tz_offset_sec", 0)
	viper.SetDefault("build.series_step_jd", 1.0)
	viper.SetDefault("build.compression", "zstd")

	viper.SetDefault("verify.passes", 4)
	viper.SetDefault("verify.points_per_pass", 256)
	viper.SetDefault("verify.tolerance", 0.0)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "local", "s3", "minio":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Store.Backend != "local" && c.Store.Bucket == "" {
		return fmt.Errorf("config: store backend %q requires a bucket", c.Store.Backend)
	}
	return nil
}
