package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/domain"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

func TestIssueValidation(t *testing.T) {
	svc := NewPostAuthService(newFakeTokenStore(), time.Hour, zap.NewNop())

	tests := []struct {
		name       string
		username   string
		assignment string
	}{
		{"missing username", "", "hw1"},
		{"missing assignment", "alice", ""},
		{"missing both", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Issue(context.Background(), tc.username, domain.RoleUser, tc.assignment)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, "INVALID_REQUEST"))
		})
	}
}

func TestIssueStoresRecord(t *testing.T) {
	store := newFakeTokenStore()
	svc := NewPostAuthService(store, time.Hour, zap.NewNop())

	token, err := svc.Issue(context.Background(), "alice", domain.RoleUser, "hw1")
	require.NoError(t, err)

	// 64 bytes of entropy, hex encoded.
	assert.Len(t, token, 128)

	rec, ok := store.recs[token]
	require.True(t, ok)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, domain.RoleUser, rec.Role)
	assert.Equal(t, "hw1", rec.Assignment)
	assert.Equal(t, domain.TokenStatusInit, rec.Status)
	assert.Equal(t, time.Hour, store.ttls[token])
}

func TestIssueTokensAreUnique(t *testing.T) {
	svc := NewPostAuthService(newFakeTokenStore(), 0, zap.NewNop())

	t1, err := svc.Issue(context.Background(), "alice", domain.RoleUser, "hw1")
	require.NoError(t, err)
	t2, err := svc.Issue(context.Background(), "alice", domain.RoleUser, "hw1")
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
}

func TestConsumeSingleUse(t *testing.T) {
	store := newFakeTokenStore()
	svc := NewPostAuthService(store, time.Hour, zap.NewNop())

	token, err := svc.Issue(context.Background(), "alice", domain.RoleAdmin, "hw2")
	require.NoError(t, err)

	rec, err := svc.Consume(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, domain.RoleAdmin, rec.Role)
	assert.Equal(t, "hw2", rec.Assignment)

	_, err = svc.Consume(context.Background(), token)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_AUTH"))
}

func TestConsumeUnknownToken(t *testing.T) {
	svc := NewPostAuthService(newFakeTokenStore(), time.Hour, zap.NewNop())

	_, err := svc.Consume(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_AUTH"))

	_, err = svc.Consume(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_AUTH"))
}
