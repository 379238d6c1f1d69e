package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/cache"
)

func newTestApp(t *testing.T, dataset string) *app {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CACHE_BACKEND", "memory")

	path := filepath.Join(t.TempDir(), "scores.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dataset), 0o600))

	a, err := newApp(context.Background(), buildOptions{Input: path, LogOutput: io.Discard, TraceOutput: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewApp_DatasetProviderIsIdentified(t *testing.T) {
	a := newTestApp(t, classDataset)
	b := newTestApp(t, classDataset+"- {student_id: s6, subject: Math, score: 40}\n")

	assert.NotEmpty(t, score.SourceID(a.deps.Provider))
	assert.NotEqual(t, score.SourceID(a.deps.Provider), score.SourceID(b.deps.Provider))
}

func TestInvalidateResults_ClearsCache(t *testing.T) {
	a := newTestApp(t, classDataset)
	require.NotNil(t, a.deps.Cache)

	ctx := context.Background()
	compute := func() (int, error) { return 42, nil }

	_, hit, err := cache.GetOrCompute(ctx, a.deps.Cache, "aggregate", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, _ = cache.GetOrCompute(ctx, a.deps.Cache, "aggregate", time.Minute, compute)
	assert.True(t, hit)

	require.NoError(t, a.invalidateResults(ctx))

	_, hit, err = cache.GetOrCompute(ctx, a.deps.Cache, "aggregate", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateResults_NoCache(t *testing.T) {
	t.Setenv("FEATURE_CACHE_RESULTS", "false")
	a := newTestApp(t, classDataset)
	assert.NoError(t, a.invalidateResults(context.Background()))
}
