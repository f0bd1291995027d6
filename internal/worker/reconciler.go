package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/events"
	"github.com/spec-kit/workspace-service/internal/fleet"
	"github.com/spec-kit/workspace-service/internal/service"
)

// Reconciler owns the node's background tasks: the fleet bus subscription
// loop and the periodic liveness sweep.
type Reconciler struct {
	workspaces *service.WorkspaceService
	liveness   *service.LivenessService
	bus        *fleet.Bus
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconciler builds the background worker.
func NewReconciler(workspaces *service.WorkspaceService, liveness *service.LivenessService, bus *fleet.Bus, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		workspaces: workspaces,
		liveness:   liveness,
		bus:        bus,
		interval:   interval,
		logger:     logger,
	}
}

// Run registers the fleet handlers, starts the subscriber loop and drives
// the sweep ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.registerHandlers()

	go func() {
		if err := r.bus.Listen(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("fleet bus listener stopped", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", zap.Duration("sweep_interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.liveness.Sweep(ctx); err != nil {
				r.logger.Error("liveness sweep failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) registerHandlers() {
	r.bus.Subscribe(events.ChannelWorkspaceDelete, func(ctx context.Context, payload []byte) {
		var p events.WorkspaceDeletePayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Username == "" {
			r.logger.Warn("malformed workspace delete event", zap.Error(err))
			return
		}
		r.workspaces.HandleDelete(ctx, p.Username)
	})

	r.bus.Subscribe(events.ChannelWorkspaceUpdate, func(ctx context.Context, payload []byte) {
		var p events.WorkspaceUpdatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			r.logger.Warn("malformed workspace update event", zap.Error(err))
			return
		}
		r.workspaces.HandleUpdate(ctx, p.ID)
	})
}
