package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workspace-service/internal/observability"
	"github.com/spec-kit/workspace-service/internal/persistence"
)

// HealthHandler responds to the fleet healthcheck probe.
type HealthHandler struct {
	serviceName string
	version     string
	nodeID      string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version, nodeID string, postgres *persistence.Postgres, redis *persistence.Redis, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		nodeID:      nodeID,
		postgres:    postgres,
		redis:       redis,
		metrics:     metrics,
	}
}

// Healthcheck handles GET /healthcheck, reporting dependency status.
func (h *HealthHandler) Healthcheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	healthy := true

	if err := h.postgres.Ping(ctx); err != nil {
		depStatus["postgres"] = err.Error()
		healthy = false
	} else {
		depStatus["postgres"] = "ok"
	}

	if err := h.redis.Ping(ctx); err != nil {
		depStatus["redis"] = err.Error()
		healthy = false
	} else {
		depStatus["redis"] = "ok"
	}

	requests, errors := h.metrics.Totals()
	body := fiber.Map{
		"status":       "OK",
		"service":      h.serviceName,
		"version":      h.version,
		"node":         h.nodeID,
		"dependencies": depStatus,
		"metrics": fiber.Map{
			"requests": requests,
			"errors":   errors,
		},
	}

	if !healthy {
		body["status"] = "DEGRADED"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	return c.JSON(body)
}
