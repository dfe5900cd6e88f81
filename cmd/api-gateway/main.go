package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/MangalNathYadav/aakash-lm-student/api/swagger"
	"github.com/MangalNathYadav/aakash-lm-student/internal/app"
	"github.com/MangalNathYadav/aakash-lm-student/internal/handler"
	"github.com/MangalNathYadav/aakash-lm-student/internal/middleware"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/scheduler"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/config"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/logger"
	corsmiddleware "github.com/MangalNathYadav/aakash-lm-student/pkg/middleware/cors"
	reqidmiddleware "github.com/MangalNathYadav/aakash-lm-student/pkg/middleware/requestid"
)

const (
	shutdownTimeout = 15 * time.Second
	limiterIdle     = 30 * time.Minute
)

// @title Exam Analytics API
// @version 1.0.0
// @description Publishes per-student analytics, predictions and leaderboards computed from uploaded test results.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg, "api-gateway")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialise services", zap.Error(err))
	}
	defer a.Close()

	if a.Exports != nil {
		a.Exports.Start(ctx)
		defer a.Exports.Stop()
	}

	// Serve the persisted history before accepting traffic.
	if version, err := a.Ingestion.Rebuild(ctx); err != nil {
		logr.Error("initial rebuild failed, serving empty state", zap.Error(err))
	} else {
		logr.Info("published state loaded", zap.Int64("version", version))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimits.PublicRPS, cfg.RateLimits.PublicBurst)
	r := newRouter(cfg, a, limiter, logr)

	sched := scheduler.New(logr)
	if cfg.Scheduler.SyncInterval > 0 {
		mustRegister(logr, sched.Register("store-sync", cfg.Scheduler.SyncInterval, func(ctx context.Context) error {
			_, err := a.Ingestion.Sync(ctx)
			return err
		}))
	}
	mustRegister(logr, sched.Register("ratelimit-prune", limiterIdle, func(context.Context) error {
		logr.Debug("rate limiter pruned", zap.Int("clients", limiter.Prune(limiterIdle)))
		return nil
	}))
	if cfg.Scheduler.Enabled {
		mustRegister(logr, sched.Register("rebuild", cfg.Scheduler.RebuildInterval, func(ctx context.Context) error {
			_, err := a.Ingestion.Rebuild(ctx)
			return err
		}))
		if a.Exports != nil {
			mustRegister(logr, sched.Register("exports-cleanup", cfg.Scheduler.CleanupInterval, func(context.Context) error {
				_, err := a.Exports.Cleanup()
				return err
			}))
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, a *app.App, limiter *middleware.RateLimiter, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	checks := make(map[string]handler.ReadinessCheck, len(a.Checks))
	for name, check := range a.Checks {
		checks[name] = handler.ReadinessCheck(check)
	}
	system := handler.NewMetricsHandler(a.Metrics, checks)
	r.GET("/health", system.Health)
	r.GET("/ready", system.Ready)
	r.GET("/metrics", system.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	students := handler.NewStudentHandler(a.Snapshots)
	leaderboards := handler.NewLeaderboardHandler(a.Snapshots, nil)
	if a.Exports != nil {
		leaderboards = handler.NewLeaderboardHandler(a.Snapshots, a.Exports)
	}
	ingestion := handler.NewIngestionHandler(a.Ingestion, logr, 0)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	public := api.Group("")
	public.Use(limiter.Middleware())
	public.GET("/students/:psid", students.Snapshot)
	public.GET("/students/:psid/prediction", students.Prediction)
	public.GET("/students/:psid/graphs", students.Graphs)
	public.GET("/leaderboards/:method", leaderboards.Get)
	public.GET("/exports/download", leaderboards.Download)

	auth := middleware.JWT(a.Tokens)
	signedIn := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator, models.RoleViewer)
	api.GET("/leaderboards/:method/private", auth, signedIn, leaderboards.Private)
	api.GET("/leaderboards/:method/export", auth, signedIn, leaderboards.Export)

	admin := api.Group("/admin")
	admin.Use(auth, middleware.RequireRoles(models.RoleAdmin, models.RoleOperator))
	admin.POST("/ingestions", ingestion.Create)
	admin.GET("/ingestions/:runId", ingestion.Status)
	admin.POST("/rebuild", middleware.RequireRoles(models.RoleAdmin), ingestion.Rebuild)
	admin.GET("/system/metrics", system.System)

	return r
}

func mustRegister(logr *zap.Logger, err error) {
	if err != nil {
		logr.Fatal("failed to schedule task", zap.Error(err))
	}
}
