package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/domain"
	"github.com/spec-kit/workspace-service/internal/events"
)

// UserStore is the slice of the user repository the core services need.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByDockerIP(ctx context.Context, ip string) ([]*domain.User, error)
	UpdateDocker(ctx context.Context, username string, docker domain.DockerInfo, expectedVersion int64) error
	ClearDockerIP(ctx context.Context, userID, ip string) error
	ClearDockerOld(ctx context.Context, userID, oldID string) error
}

// SnapshotCache is the cached workspace projection.
type SnapshotCache interface {
	Get(ctx context.Context, username string) (*domain.Snapshot, error)
	Set(ctx context.Context, snap *domain.Snapshot) error
	All(ctx context.Context) ([]domain.Snapshot, error)
}

// EventPublisher publishes fleet events.
type EventPublisher interface {
	Publish(ctx context.Context, channel events.Channel, payload any) error
}

// ConflictService guarantees that at most one workspace record holds a given
// IP across the durable store and the cache. Both passes are idempotent: a
// second run with no new publishes mutates nothing.
type ConflictService struct {
	users  UserStore
	cache  SnapshotCache
	bus    EventPublisher
	logger *zap.Logger
}

// NewConflictService builds the resolver.
func NewConflictService(users UserStore, cache SnapshotCache, bus EventPublisher, logger *zap.Logger) *ConflictService {
	return &ConflictService{users: users, cache: cache, bus: bus, logger: logger}
}

// Resolve clears every stale claim to ip. Both passes must complete before
// the caller writes the new claim, or the uniqueness invariant breaks.
func (s *ConflictService) Resolve(ctx context.Context, ip string) error {
	if err := s.resolveStore(ctx, ip); err != nil {
		return err
	}
	return s.resolveCache(ctx, ip)
}

// resolveStore nulls the IP on every durable record claiming it, including a
// stale record for the publisher itself. An empty match set is success.
func (s *ConflictService) resolveStore(ctx context.Context, ip string) error {
	matches, err := s.users.FindByDockerIP(ctx, ip)
	if err != nil {
		return err
	}

	for _, user := range matches {
		if user.Docker.IP != ip {
			continue
		}
		if err := s.users.ClearDockerIP(ctx, user.ID, ip); err != nil {
			return err
		}
		s.logger.Info("cleared conflicting durable IP claim",
			zap.String("username", user.Username), zap.String("ip", ip))
	}
	return nil
}

// resolveCache scans the full snapshot namespace, nulls matching claims,
// writes the corrections back and announces each as a WorkspaceConflict.
func (s *ConflictService) resolveCache(ctx context.Context, ip string) error {
	snaps, err := s.cache.All(ctx)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		if snap.IP == nil || *snap.IP != ip {
			continue
		}

		corrected := snap
		corrected.IP = nil
		if err := s.cache.Set(ctx, &corrected); err != nil {
			return err
		}

		if err := s.bus.Publish(ctx, events.ChannelWorkspaceConflict, corrected); err != nil {
			s.logger.Warn("failed to publish workspace conflict",
				zap.String("username", corrected.Username), zap.Error(err))
		}
		s.logger.Info("cleared conflicting cached IP claim",
			zap.String("username", corrected.Username), zap.String("ip", ip))
	}
	return nil
}
