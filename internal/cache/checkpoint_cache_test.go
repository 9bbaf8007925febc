package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/dagline/dagline/internal/config"
	"github.com/dagline/dagline/pkg/models"
)

type fakeLoader struct {
	calls int
	cp    *models.Checkpoint
}

func (f *fakeLoader) LoadCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	f.calls++
	return f.cp, nil
}

func (f *fakeLoader) ListRecoverable(ctx context.Context) ([]string, error) {
	return []string{f.cp.ExecutionID}, nil
}

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rc, err := NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestCheckpointCache_SecondLoadHitsCacheNotStore(t *testing.T) {
	rc, _ := newTestRedisCache(t)
	loader := &fakeLoader{cp: &models.Checkpoint{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Workflow:    &models.Workflow{ID: "wf-1", Name: "w"},
		Status:      models.ExecutionStatusRunning,
		InDegree:    map[string]int{"n1": 0},
		Completed:   map[string]bool{},
		Results:     map[string]*models.NodeResult{},
		Timestamp:   time.Now(),
	}}
	cache := NewCheckpointCache(rc, loader, time.Minute)

	first, err := cache.LoadCheckpoint(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Equal(t, "wf-1", first.WorkflowID)
	require.Equal(t, 1, loader.calls)

	second, err := cache.LoadCheckpoint(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Equal(t, "wf-1", second.WorkflowID)
	require.Equal(t, 1, loader.calls, "cache hit should skip the store")
}

func TestCheckpointCache_InvalidateForcesStoreReload(t *testing.T) {
	rc, _ := newTestRedisCache(t)
	loader := &fakeLoader{cp: &models.Checkpoint{ExecutionID: "exec-1", WorkflowID: "wf-1", Workflow: &models.Workflow{ID: "wf-1", Name: "w"}}}
	cache := NewCheckpointCache(rc, loader, time.Minute)

	_, err := cache.LoadCheckpoint(context.Background(), "exec-1")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), "exec-1"))

	_, err = cache.LoadCheckpoint(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls, "invalidate should force a second store read")
}
