package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/config"
	"github.com/spec-kit/workspace-service/internal/domain"
	"github.com/spec-kit/workspace-service/internal/events"
	"github.com/spec-kit/workspace-service/internal/runtime"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

// TokenIssuer issues and consumes post-boot tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, username string, role domain.Role, assignment string) (string, error)
	Consume(ctx context.Context, token string) (*domain.PostBootToken, error)
}

// ConflictResolver clears stale claims to an IP before a new claim is written.
type ConflictResolver interface {
	Resolve(ctx context.Context, ip string) error
}

// WorkspaceService drives the container lifecycle: create, start, identity
// rotation and distributed teardown.
type WorkspaceService struct {
	users     UserStore
	cache     SnapshotCache
	tokens    TokenIssuer
	conflicts ConflictResolver
	runtime   runtime.ContainerRuntime
	bus       EventPublisher
	docker    config.DockerConfig
	nodeID    string
	logger    *zap.Logger
}

// WorkspaceDependencies bundles the collaborators of the lifecycle controller.
type WorkspaceDependencies struct {
	Users     UserStore
	Cache     SnapshotCache
	Tokens    TokenIssuer
	Conflicts ConflictResolver
	Runtime   runtime.ContainerRuntime
	Bus       EventPublisher
}

// NewWorkspaceService builds the controller. nodeID is this fleet node's
// identity, used to dedup self-originated update broadcasts.
func NewWorkspaceService(cfg config.DockerConfig, nodeID string, deps WorkspaceDependencies, logger *zap.Logger) *WorkspaceService {
	return &WorkspaceService{
		users:     deps.Users,
		cache:     deps.Cache,
		tokens:    deps.Tokens,
		conflicts: deps.Conflicts,
		runtime:   deps.Runtime,
		bus:       deps.Bus,
		docker:    cfg,
		nodeID:    nodeID,
		logger:    logger,
	}
}

// NodeID returns this node's fleet identity.
func (s *WorkspaceService) NodeID() string {
	return s.nodeID
}

// Start provisions a new container for the user, rotates the recorded
// container identity and schedules teardown of the previous one. It returns
// the post-boot token the container will present on publish.
//
// Creation failure is fatal to the call; the operator re-invokes.
func (s *WorkspaceService) Start(ctx context.Context, username, assignment string) (string, error) {
	if username == "" || assignment == "" {
		return "", apperrors.NewInvalidRequest("username and assignment are required", nil)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(ctx, username, user.Role, assignment)
	if err != nil {
		return "", err
	}

	spec := runtime.CreateSpec{
		Image:         s.docker.Image,
		Owner:         user.Username,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		UserID:        user.ID,
		Assignment:    assignment,
		PostAuthToken: token,
		MountSource:   s.docker.MountSource(username, assignment),
		AdvertiseAddr: s.docker.AdvertiseAddr,
		HostPort:      s.docker.HostPort,
	}

	createCtx, cancel := context.WithTimeout(ctx, s.docker.CallTimeout())
	defer cancel()

	id, err := s.runtime.Create(createCtx, spec)
	if err != nil {
		return "", apperrors.NewRuntimeError("container creation failed", err)
	}

	if err := s.runtime.Start(createCtx, id); err != nil {
		return "", apperrors.NewRuntimeError("container start failed", err)
	}

	info, err := s.runtime.Inspect(createCtx, id)
	if err != nil {
		return "", apperrors.NewRuntimeError("container inspect failed", err)
	}

	prev := user.Docker.ID
	rotated := user.Docker
	rotated.ID = info.ID
	rotated.Old = prev
	if err := s.users.UpdateDocker(ctx, username, rotated, user.DockerVersion); err != nil {
		return "", err
	}

	s.logger.Info("rotated workspace identity",
		zap.String("username", username),
		zap.String("container", info.ID),
		zap.String("previous", prev))

	// Teardown of the previous container is asynchronous; whichever node
	// holds it services the event.
	if prev != "" {
		if err := s.bus.Publish(ctx, events.ChannelWorkspaceDelete, events.WorkspaceDeletePayload{Username: username}); err != nil {
			s.logger.Warn("failed to publish workspace delete", zap.String("username", username), zap.Error(err))
		}
	}

	return token, nil
}

// Publish consumes the post-boot token, resolves IP conflicts and records
// the workspace's observed IP durably and in the cache.
//
// Partial progress is not rolled back: conflict resolution is idempotent, so
// a retried publish self-heals.
func (s *WorkspaceService) Publish(ctx context.Context, token, ip string) error {
	if ip == "" {
		return apperrors.NewInvalidRequest("ip is required", nil)
	}

	rec, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return err
	}

	if err := s.conflicts.Resolve(ctx, ip); err != nil {
		return err
	}

	// Re-read after resolution: the durable pass may have touched this very
	// record and bumped its version.
	user, err := s.users.GetByUsername(ctx, rec.Username)
	if err != nil {
		return err
	}

	claimed := user.Docker
	claimed.IP = ip
	claimed.Username = rec.Username
	claimed.Assignment = rec.Assignment
	if err := s.users.UpdateDocker(ctx, rec.Username, claimed, user.DockerVersion); err != nil {
		return err
	}

	snap := domain.Snapshot{
		IP:         &ip,
		Username:   rec.Username,
		Assignment: rec.Assignment,
		APIKey:     user.APIKey(),
		Role:       user.Role,
	}
	if err := s.cache.Set(ctx, &snap); err != nil {
		return err
	}

	if err := s.bus.Publish(ctx, events.ChannelNewWorkspace, snap); err != nil {
		s.logger.Warn("failed to publish new workspace", zap.String("username", rec.Username), zap.Error(err))
	}

	s.logger.Info("workspace published",
		zap.String("username", rec.Username),
		zap.String("ip", ip),
		zap.String("assignment", rec.Assignment))
	return nil
}

// HandleDelete services a WorkspaceDelete event: stop and remove the user's
// previous container if this node holds it. Failures are logged, never
// escalated; on non-owning nodes the stop legitimately fails and the event
// is a no-op.
func (s *WorkspaceService) HandleDelete(ctx context.Context, username string) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		s.logger.Warn("teardown lookup failed", zap.String("username", username), zap.Error(err))
		return
	}

	old := user.Docker.Old
	if old == "" {
		s.logger.Debug("no previous container to tear down", zap.String("username", username))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.docker.CallTimeout())
	defer cancel()

	if err := s.runtime.Stop(callCtx, old); err != nil {
		s.logger.Debug("container stop failed", zap.String("container", old), zap.Error(err))
		return
	}
	if err := s.runtime.Remove(callCtx, old); err != nil {
		s.logger.Warn("container remove failed", zap.String("container", old), zap.Error(err))
		return
	}

	s.logger.Info("removed previous container",
		zap.String("username", username), zap.String("container", old))

	if err := s.users.ClearDockerOld(ctx, user.ID, old); err != nil {
		s.logger.Warn("failed to clear old container identity",
			zap.String("username", username), zap.Error(err))
	}
}

// HandleUpdate services a WorkspaceUpdate event. The origin node skips its
// own broadcast so an update cannot re-trigger itself.
func (s *WorkspaceService) HandleUpdate(ctx context.Context, originID string) {
	if originID == s.nodeID {
		s.logger.Info("skipping self-originated image update", zap.String("node", s.nodeID))
		return
	}
	if err := s.UpdateImage(ctx); err != nil {
		s.logger.Error("fleet-triggered image update failed", zap.Error(err))
	}
}

// UpdateImage pulls the configured workspace image on this node. Errors
// abort the pull and are logged by callers; there is no automatic retry.
func (s *WorkspaceService) UpdateImage(ctx context.Context) error {
	pullCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if err := s.runtime.PullImage(pullCtx, s.docker.Image); err != nil {
		return apperrors.NewRuntimeError("image pull failed", err)
	}
	return nil
}

// UpdateWrapper broadcasts the update to every fleet node, then pulls
// locally.
func (s *WorkspaceService) UpdateWrapper(ctx context.Context) error {
	if err := s.bus.Publish(ctx, events.ChannelWorkspaceUpdate, events.WorkspaceUpdatePayload{ID: s.nodeID}); err != nil {
		s.logger.Warn("failed to broadcast image update", zap.Error(err))
	}
	return s.UpdateImage(ctx)
}
