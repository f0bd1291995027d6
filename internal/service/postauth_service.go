package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/domain"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

const tokenEntropyBytes = 64

// TokenStore persists post-boot token records.
type TokenStore interface {
	Put(ctx context.Context, token string, rec domain.PostBootToken, ttl time.Duration) error
	Consume(ctx context.Context, token string) (*domain.PostBootToken, error)
}

// PostAuthService issues and consumes the one-time tokens a freshly booted
// container uses to report its network identity.
type PostAuthService struct {
	tokens TokenStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewPostAuthService builds the service. A zero ttl disables token expiry.
func NewPostAuthService(tokens TokenStore, ttl time.Duration, logger *zap.Logger) *PostAuthService {
	return &PostAuthService{tokens: tokens, ttl: ttl, logger: logger}
}

// Issue generates a fresh token scoped to the user's role and the requested
// assignment and stores its record.
func (s *PostAuthService) Issue(ctx context.Context, username string, role domain.Role, assignment string) (string, error) {
	if username == "" || assignment == "" {
		return "", apperrors.NewInvalidRequest("username and assignment are required", nil)
	}

	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperrors.NewInternalError(err)
	}
	token := hex.EncodeToString(buf)

	rec := domain.PostBootToken{
		Username:   username,
		Role:       role,
		Assignment: assignment,
		Status:     domain.TokenStatusInit,
	}
	if err := s.tokens.Put(ctx, token, rec, s.ttl); err != nil {
		return "", err
	}

	s.logger.Debug("issued post-boot token", zap.String("username", username),
		zap.String("assignment", assignment))
	return token, nil
}

// Consume validates the token and invalidates it in the same step. An
// unknown or malformed token fails with INVALID_AUTH.
func (s *PostAuthService) Consume(ctx context.Context, token string) (*domain.PostBootToken, error) {
	if token == "" {
		return nil, apperrors.NewInvalidAuth("missing token")
	}

	rec, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Username == "" {
		return nil, apperrors.NewInvalidAuth("unknown token")
	}
	return rec, nil
}
