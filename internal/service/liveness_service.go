package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/domain"
	"github.com/spec-kit/workspace-service/internal/events"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

// LivenessStore persists heartbeat records.
type LivenessStore interface {
	Put(ctx context.Context, username string, rec domain.LivenessRecord) error
	All(ctx context.Context) (map[string]domain.LivenessRecord, error)
}

// LivenessService ingests heartbeats and runs the reconciliation sweep that
// reclaims workspaces whose owners disappeared without an explicit stop.
type LivenessService struct {
	liveness  LivenessStore
	bus       EventPublisher
	threshold time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewLivenessService builds the tracker.
func NewLivenessService(liveness LivenessStore, bus EventPublisher, threshold time.Duration, logger *zap.Logger) *LivenessService {
	return &LivenessService{
		liveness:  liveness,
		bus:       bus,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Heartbeat unconditionally refreshes the user's liveness record. Unknown
// users are accepted; an orphan record ages out through the sweep.
func (s *LivenessService) Heartbeat(ctx context.Context, username string) error {
	if username == "" {
		return apperrors.NewInvalidRequest("username is required", nil)
	}

	rec := domain.LivenessRecord{
		Checkin: s.now().Unix(),
		Max:     int64(s.threshold.Seconds()),
		Online:  true,
	}
	return s.liveness.Put(ctx, username, rec)
}

// Sweep scans every liveness record and evicts stale workspaces: a
// WorkspaceDelete is published for each and the record is retired. The
// published username is always the one keying the record under evaluation.
func (s *LivenessService) Sweep(ctx context.Context) error {
	records, err := s.liveness.All(ctx)
	if err != nil {
		return err
	}

	now := s.now().Unix()
	for username, rec := range records {
		if !rec.Online {
			continue
		}

		age := now - rec.Checkin
		if age < 0 {
			s.logger.Warn("liveness checkin in the future, skipping",
				zap.String("username", username), zap.Int64("checkin", rec.Checkin))
			continue
		}
		if age < rec.Max {
			continue
		}

		if err := s.bus.Publish(ctx, events.ChannelWorkspaceDelete, events.WorkspaceDeletePayload{Username: username}); err != nil {
			s.logger.Warn("failed to publish eviction",
				zap.String("username", username), zap.Error(err))
			continue
		}

		retired := domain.LivenessRecord{Checkin: rec.Checkin, Max: 0, Online: false}
		if err := s.liveness.Put(ctx, username, retired); err != nil {
			s.logger.Warn("failed to retire liveness record",
				zap.String("username", username), zap.Error(err))
			continue
		}

		s.logger.Info("evicted stale workspace",
			zap.String("username", username), zap.Int64("age_seconds", age))
	}
	return nil
}
