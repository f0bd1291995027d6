package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/workspace-service/internal/api/http"
	"github.com/spec-kit/workspace-service/internal/api/http/handlers"
	"github.com/spec-kit/workspace-service/internal/auth"
	"github.com/spec-kit/workspace-service/internal/config"
	"github.com/spec-kit/workspace-service/internal/fleet"
	"github.com/spec-kit/workspace-service/internal/observability"
	"github.com/spec-kit/workspace-service/internal/persistence"
	"github.com/spec-kit/workspace-service/internal/repository"
	"github.com/spec-kit/workspace-service/internal/runtime"
	"github.com/spec-kit/workspace-service/internal/service"
	"github.com/spec-kit/workspace-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeID := uuid.NewString()
	logger = logger.With(zap.String("node", nodeID))

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	dockerRuntime, err := runtime.NewDockerRuntime(logger, cfg.Docker.StopTimeoutSeconds)
	if err != nil {
		logger.Fatal("failed to connect docker", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(pg.PoolHandle())
	bus := fleet.NewBus(redis.Client, logger)
	cache := fleet.NewSnapshotCache(redis.Client, logger)
	tokenStore := fleet.NewTokenStore(redis.Client)
	livenessStore := fleet.NewLivenessStore(redis.Client, logger)

	postAuth := service.NewPostAuthService(tokenStore, cfg.Auth.PostBootTTL(), logger)
	conflicts := service.NewConflictService(userRepo, cache, bus, logger)
	workspaces := service.NewWorkspaceService(cfg.Docker, nodeID, service.WorkspaceDependencies{
		Users:     userRepo,
		Cache:     cache,
		Tokens:    postAuth,
		Conflicts: conflicts,
		Runtime:   dockerRuntime,
		Bus:       bus,
	}, logger)
	liveness := service.NewLivenessService(livenessStore, bus, cfg.Liveness.Threshold(), logger)

	reconciler := worker.NewReconciler(workspaces, liveness, bus, cfg.Liveness.SweepInterval(), logger)
	go reconciler.Run(ctx)

	tokenMgr := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.OperatorTokenTTLMinutes)
	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:             handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, nodeID, pg, redis, metrics),
		Workspace:          handlers.NewWorkspaceHandler(workspaces, liveness, logger),
		Auth:               handlers.NewAuthHandler(tokenMgr, cfg.Auth.OperatorPasswordHash),
		APIKeyMiddleware:   auth.NewAPIKeyMiddleware(userRepo),
		OperatorMiddleware: auth.NewOperatorMiddleware(tokenMgr),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
