package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dagline/dagline/pkg/models"
)

// CheckpointLoader is the subset of internal/checkpoint.Store this
// cache fronts — declared here rather than imported, the same
// decoupling reasoning as engine.CheckpointWriter's placement.
type CheckpointLoader interface {
	LoadCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error)
	ListRecoverable(ctx context.Context) ([]string, error)
}

// CheckpointCache is a read-through cache in front of the recovery
// path's LoadCheckpoint read (ListRecoverable passes straight through
// to the store, uncached): a crash-recovery
// sweep across many non-terminal executions re-reads the same rows
// repeatedly while it works through the backlog, and those rows don't
// change between an execution's own checkpoint writes.
type CheckpointCache struct {
	redis *RedisCache
	store CheckpointLoader
	ttl   time.Duration
}

func NewCheckpointCache(redis *RedisCache, store CheckpointLoader, ttl time.Duration) *CheckpointCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CheckpointCache{redis: redis, store: store, ttl: ttl}
}

func checkpointKey(executionID string) string {
	return "dagline:checkpoint:" + executionID
}

// LoadCheckpoint returns executionID's checkpoint, serving from Redis
// when present and falling back to the store on a miss or a cache
// error (a cache outage must never block recovery).
func (c *CheckpointCache) LoadCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	// A cache miss or a cache-layer error both fall through to the
	// store — a Redis outage must never block recovery.
	if raw, err := c.redis.Get(ctx, checkpointKey(executionID)); err == nil {
		var cp models.Checkpoint
		if jsonErr := json.Unmarshal([]byte(raw), &cp); jsonErr == nil {
			return &cp, nil
		}
	}

	cp, err := c.store.LoadCheckpoint(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(cp); err == nil {
		_ = c.redis.Set(ctx, checkpointKey(executionID), encoded, c.ttl)
	}
	return cp, nil
}

// Invalidate drops a cached checkpoint, e.g. right before issuing a
// NodeFinish write so the next LoadCheckpoint can't serve a stale copy.
func (c *CheckpointCache) Invalidate(ctx context.Context, executionID string) error {
	return c.redis.Delete(ctx, checkpointKey(executionID))
}

// ListRecoverable is never cached: it must reflect the store's
// up-to-the-moment set of non-terminal executions for a recovery sweep
// to be safe, so this passes straight through.
func (c *CheckpointCache) ListRecoverable(ctx context.Context) ([]string, error) {
	ids, err := c.store.ListRecoverable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recoverable: %w", err)
	}
	return ids, nil
}
