package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, 0.5, cfg.Analytics.DefaultSensitivity)
	assert.Equal(t, 10, cfg.Analytics.MinTrainingRecords)
	assert.Equal(t, SignificanceStudentT, cfg.Analytics.Significance)
	assert.Equal(t, 100.0, cfg.Analytics.HighSeverityDeviation)
	assert.True(t, cfg.Features.IsEnabled(FeatureResultCache))
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "Redis")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("ANALYTICS_DEFAULT_SENSITIVITY", "0.8")
	t.Setenv("ANALYTICS_SIGNIFICANCE", "normal")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "grader")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 0.8, cfg.Analytics.DefaultSensitivity)
	assert.Equal(t, SignificanceNormal, cfg.Analytics.Significance)
	assert.Equal(t, "postgres://grader:secret@db:5432/grades?sslmode=disable", cfg.Database.URL)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("CACHE_MAX_ENTRIES", "lots")
	t.Setenv("CACHE_DEFAULT_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("ANALYTICS_DEFAULT_SENSITIVITY", "1.5")
	t.Setenv("ANALYTICS_SIGNIFICANCE", "bootstrap")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required in production")
	assert.Contains(t, msg, "CACHE_BACKEND must be memory or redis")
	assert.Contains(t, msg, "ANALYTICS_DEFAULT_SENSITIVITY must be 0-1")
	assert.Contains(t, msg, "ANALYTICS_SIGNIFICANCE must be student_t or normal")
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_GRADING_ASSIGN_MISSING_RANKS", "true")
	t.Setenv("FEATURE_PREDICTION_ENABLED", "off")

	ff := LoadFeatureFlags()
	assert.True(t, ff.IsEnabled(FeatureAssignMissingRanks))
	assert.True(t, ff.IsEnabled(FeaturePrediction), "unparsable override keeps the default")
	assert.False(t, ff.IsEnabled("no.such.feature"))

	require.NoError(t, ff.SetEnabled(FeaturePrediction, false))
	assert.False(t, ff.IsEnabled(FeaturePrediction))
	assert.ErrorIs(t, ff.SetEnabled("no.such.feature", true), ErrFeatureNotFound)

	all := ff.GetAllFeatures()
	require.Len(t, all, 5)
	assert.Equal(t, FeatureZScoreAnomalies, all[0].Name)

	var nilFlags *FeatureFlags
	assert.False(t, nilFlags.IsEnabled(FeatureResultCache))
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_TREND_EXPONENTIAL", featureNameToEnvKey(FeatureExponentialForecast))
}
