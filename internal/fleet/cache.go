package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/domain"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

const snapshotPrefix = "workspace:"

// SnapshotCache keeps the read-optimized workspace projection in Redis,
// keyed by username.
type SnapshotCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSnapshotCache wraps a Redis client for snapshot access.
func NewSnapshotCache(client *redis.Client, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{client: client, logger: logger}
}

// Get fetches one snapshot; a missing key returns (nil, nil).
func (c *SnapshotCache) Get(ctx context.Context, username string) (*domain.Snapshot, error) {
	val, err := c.client.Get(ctx, snapshotPrefix+username).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return &snap, nil
}

// Set writes one snapshot. Snapshots have no expiry; they are replaced on the
// next publish or corrected by conflict resolution.
func (c *SnapshotCache) Set(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, snapshotPrefix+snap.Username, data, 0).Err(); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// All scans the snapshot namespace and returns every parseable entry.
// Malformed values are logged and skipped, never fatal. This is a full
// namespace scan per call; cardinality is expected to stay small.
func (c *SnapshotCache) All(ctx context.Context) ([]domain.Snapshot, error) {
	var snaps []domain.Snapshot

	iter := c.client.Scan(ctx, 0, snapshotPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, apperrors.NewStoreError(err)
		}

		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(val), &snap); err != nil {
			c.logger.Warn("skipping malformed cached workspace",
				zap.String("key", key), zap.Error(err))
			continue
		}
		if snap.Username == "" {
			snap.Username = strings.TrimPrefix(key, snapshotPrefix)
		}
		snaps = append(snaps, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return snaps, nil
}
