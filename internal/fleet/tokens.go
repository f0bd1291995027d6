package fleet

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/workspace-service/internal/domain"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

const tokenPrefix = "auth:"

// consumeScript reads a token hash and deletes it in one atomic step so a
// token can never be consumed twice.
var consumeScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
  return fields
end
redis.call('DEL', KEYS[1])
return fields
`)

// TokenStore keeps post-boot token records in Redis hashes under auth:<token>.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore wraps a Redis client for token access.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Put writes the token record. A zero ttl means no expiry.
func (s *TokenStore) Put(ctx context.Context, token string, rec domain.PostBootToken, ttl time.Duration) error {
	key := tokenPrefix + token

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"username":   rec.Username,
		"role":       string(rec.Role),
		"assignment": rec.Assignment,
		"status":     rec.Status,
	})
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// Consume atomically reads and deletes the token record. An unknown token
// returns (nil, nil).
func (s *TokenStore) Consume(ctx context.Context, token string) (*domain.PostBootToken, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{tokenPrefix + token}).Result()
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) == 0 {
		return nil, nil
	}

	rec := &domain.PostBootToken{}
	for i := 0; i+1 < len(fields); i += 2 {
		name, _ := fields[i].(string)
		value, _ := fields[i+1].(string)
		switch name {
		case "username":
			rec.Username = value
		case "role":
			rec.Role = domain.Role(value)
		case "assignment":
			rec.Assignment = value
		case "status":
			rec.Status = value
		}
	}
	return rec, nil
}
