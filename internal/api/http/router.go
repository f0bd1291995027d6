package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workspace-service/internal/api/http/handlers"
	"github.com/spec-kit/workspace-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health             *handlers.HealthHandler
	Workspace          *handlers.WorkspaceHandler
	Auth               *handlers.AuthHandler
	APIKeyMiddleware   *auth.APIKeyMiddleware
	OperatorMiddleware *auth.OperatorMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/healthcheck", cfg.Health.Healthcheck)

	app.Post("/start", cfg.Workspace.Start)
	app.Post("/post", cfg.Workspace.Publish)
	app.Post("/publish", cfg.Workspace.Publish)
	app.Post("/heartbeat", cfg.Workspace.Heartbeat)
	app.Post("/updateImage", cfg.OperatorMiddleware.Handle, cfg.Workspace.UpdateImage)

	app.Get("/workspace", cfg.APIKeyMiddleware.Handle, cfg.Workspace.Workspace)

	app.Post("/auth/operator/login", cfg.Auth.OperatorLogin)
}
