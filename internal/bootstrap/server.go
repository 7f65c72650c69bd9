package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	infragin "github.com/north-cloud/huv-matcher/infrastructure/gin"
	infralogger "github.com/north-cloud/huv-matcher/infrastructure/logger"
	"github.com/north-cloud/huv-matcher/internal/api"
	"github.com/north-cloud/huv-matcher/internal/domain"
	"github.com/north-cloud/huv-matcher/internal/scheduler"
)

const healthProbeTimeout = 2 * time.Second

// ErrSchedulerNeedsDatabase is returned when the scheduler is enabled but no
// results repository exists.
var ErrSchedulerNeedsDatabase = errors.New("scheduler requires a database reference driver")

// NewHTTPServer creates the API server with health checks for every
// configured dependency.
func (a *App) NewHTTPServer() *infragin.Server {
	cfg := a.Config
	if cfg.Auth.JWTSecret == "" {
		a.Logger.Warn("AUTH_JWT_SECRET is empty, /api/v1 is unauthenticated")
	}

	handler := api.NewHandler(a.Runner, a.Engine, a.Logger)
	return infragin.NewServer(&infragin.Config{
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	}, a.Logger, a.healthChecks(), func(router *gin.Engine) {
		api.SetupRoutes(router, handler, cfg.Auth.JWTSecret, a.Telemetry.Handler())
	})
}

func (a *App) healthChecks() map[string]infragin.HealthChecker {
	checks := map[string]infragin.HealthChecker{}
	if a.DB != nil {
		checks["database"] = infragin.PingChecker(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
			defer cancel()
			return a.DB.PingContext(ctx)
		}, false)
	}
	if a.Redis != nil {
		checks["redis"] = infragin.PingChecker(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
			defer cancel()
			return a.Redis.Ping(ctx).Err()
		}, true)
	}
	if a.ollama != nil {
		checks["ollama"] = infragin.PingChecker(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
			defer cancel()
			return a.ollama.Health(ctx)
		}, true)
	}
	return checks
}

// NewScheduler returns the unmatched re-run scheduler.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	if a.Results == nil {
		return nil, ErrSchedulerNeedsDatabase
	}
	cfg := a.Config.Scheduler
	a.Logger.Info("Configuring scheduler", infralogger.String("spec", cfg.Spec))
	return scheduler.New(a.Results, a.Runner, scheduler.Config{
		Spec:  cfg.Spec,
		Limit: cfg.Limit,
		Mode:  domain.Mode(cfg.Mode),
	}, a.Logger)
}
