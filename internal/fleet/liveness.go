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

const livenessPrefix = "liveness:"

// LivenessStore keeps heartbeat records in Redis under liveness:<username>.
type LivenessStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLivenessStore wraps a Redis client for liveness access.
func NewLivenessStore(client *redis.Client, logger *zap.Logger) *LivenessStore {
	return &LivenessStore{client: client, logger: logger}
}

// Put unconditionally overwrites the record for a user.
func (s *LivenessStore) Put(ctx context.Context, username string, rec domain.LivenessRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, livenessPrefix+username, data, 0).Err(); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// All scans the liveness namespace and returns records keyed by username.
// Malformed entries are logged and skipped.
func (s *LivenessStore) All(ctx context.Context) (map[string]domain.LivenessRecord, error) {
	records := make(map[string]domain.LivenessRecord)

	iter := s.client.Scan(ctx, 0, livenessPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, apperrors.NewStoreError(err)
		}

		var rec domain.LivenessRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			s.logger.Warn("skipping malformed liveness record",
				zap.String("key", key), zap.Error(err))
			continue
		}
		records[strings.TrimPrefix(key, livenessPrefix)] = rec
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return records, nil
}
