package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears all viper state between tests to avoid
// cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoadDefaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.MetricsAddr)
	assert.Equal(t, "local", cfg.Store.Backend)
	assert.Equal(t, "kernels", cfg.Store.Dir)
	assert.Equal(t, "minute", cfg.Build.Tier)
	assert.Equal(t, 0, cfg.Build.Parallelism)
	assert.Equal(t, 1.0, cfg.Build.SeriesStepJD)
	assert.Equal(t, "zstd", cfg.Build.Compression)
	assert.Equal(t, 4, cfg.Verify.Passes)
	assert.Equal(t, 256, cfg.Verify.PointsPerPass)
}

func TestLoadOverrides(t *testing.T) {
	resetViper()

	viper.Set("log_level", "debug")
	viper.Set("store.backend", "s3")
	viper.Set("store.bucket", "kernels-prod")
	viper.Set("store.commit_table", "zenith-commits")
	viper.Set("build.tier", "second")
	viper.Set("build.rate_limit", 50.0)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "s3", cfg.Store.Backend)
	assert.Equal(t, "kernels-prod", cfg.Store.Bucket)
	assert.Equal(t, "zenith-commits", cfg.Store.CommitTable)
	assert.Equal(t, "second", cfg.Build.Tier)
	assert.Equal(t, 50.0, cfg.Build.RateLimit)
}

func TestLoadRejectsInvalid(t *testing.T) {
	resetViper()
	viper.Set("store.backend", "ftp")
	_, err := Load()
	assert.Error(t, err)

	resetViper()
	viper.Set("log_level", "loud")
	_, err = Load()
	assert.Error(t, err)

	resetViper()
	viper.Set("store.backend", "s3") // bucket missing
	_, err = Load()
	assert.Error(t, err)
}
