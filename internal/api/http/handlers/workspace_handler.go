package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/api/dto"
	"github.com/spec-kit/workspace-service/internal/auth"
	"github.com/spec-kit/workspace-service/internal/service"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

// WorkspaceHandler exposes the workspace lifecycle endpoints.
type WorkspaceHandler struct {
	workspaces *service.WorkspaceService
	liveness   *service.LivenessService
	logger     *zap.Logger
}

// NewWorkspaceHandler constructs handler.
func NewWorkspaceHandler(workspaces *service.WorkspaceService, liveness *service.LivenessService, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, liveness: liveness, logger: logger}
}

// Start handles POST /start.
func (h *WorkspaceHandler) Start(c *fiber.Ctx) error {
	var req dto.StartRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidRequest("invalid payload", nil)
	}
	if req.Username == "" || req.Assignment == "" {
		return apperrors.NewInvalidRequest("username and assignment required", nil)
	}

	token, err := h.workspaces.Start(c.UserContext(), req.Username, req.Assignment)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status": "OK",
		"data":   fiber.Map{"token": token},
	})
}

// Publish handles POST /post and its /publish alias.
func (h *WorkspaceHandler) Publish(c *fiber.Ctx) error {
	var req dto.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidRequest("invalid payload", nil)
	}
	if req.Auth == "" || req.IP == "" {
		return apperrors.NewInvalidRequest("auth and ip required", nil)
	}

	if err := h.workspaces.Publish(c.UserContext(), req.Auth, req.IP); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "OK"})
}

// Heartbeat handles POST /heartbeat. Validation failures return 400;
// processing failures surface as 500-class through the error middleware.
func (h *WorkspaceHandler) Heartbeat(c *fiber.Ctx) error {
	var req dto.HeartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidRequest("invalid payload", nil)
	}
	if req.Username == "" {
		return apperrors.NewInvalidRequest("username required", nil)
	}

	if err := h.liveness.Heartbeat(c.UserContext(), req.Username); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "OK"})
}

// UpdateImage handles POST /updateImage: broadcast to the fleet, pull
// locally in the background and acknowledge immediately.
func (h *WorkspaceHandler) UpdateImage(c *fiber.Ctx) error {
	// Detached from the request context: the pull outlives the response.
	go func() {
		if err := h.workspaces.UpdateWrapper(context.Background()); err != nil {
			h.logger.Error("image update failed", zap.Error(err))
		}
	}()
	return c.JSON(fiber.Map{"status": "OK"})
}

// Workspace handles GET /workspace for apikey-authenticated callers,
// returning their docker sub-document.
func (h *WorkspaceHandler) Workspace(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("not authenticated")
	}
	if user.Docker.ID == "" && user.Docker.IP == "" {
		return apperrors.NewNotFound("workspace", map[string]any{"username": user.Username})
	}
	return c.JSON(fiber.Map{
		"status": "OK",
		"data":   user.Docker,
	})
}
