// Package app assembles the stores and services shared by the API server and
// the ingest command.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/MangalNathYadav/aakash-lm-student/internal/analytics"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/repository"
	"github.com/MangalNathYadav/aakash-lm-student/internal/service"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/cache"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/config"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/database"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/export"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/storage"
)

const cacheKeyPrefix = "exam-analytics"

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

// App holds the wired services.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *service.MetricsService
	Cache     *service.CacheService
	Snapshots *service.SnapshotService
	Ingestion *service.IngestionService
	Exports   *service.ExportService
	Tokens    *service.TokenService
	Checks    map[string]Check

	closers []func() error
}

// Open connects the configured store and cache and builds every service.
// Redis is optional: without it the view cache is disabled and run reports
// stay in process memory.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Checks: map[string]Check{}}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, view cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	a.Metrics = service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, cacheKeyPrefix, logger)
	if redisClient != nil {
		a.closers = append(a.closers, cacheRepo.Close)
		a.Checks["cache"] = cacheRepo.Ping
	}
	a.Cache = service.NewCacheService(cacheRepo, a.Metrics, cfg.Analytics.LeaderboardCacheTTL, logger, redisClient != nil)
	a.Snapshots = service.NewSnapshotService(a.Cache, a.Metrics, logger)

	syllabus, err := loadSyllabus(cfg.Analytics.SyllabusFile, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Ingestion = service.NewIngestionService(
		store,
		repository.NewIngestionRunRepository(redisClient, cfg.Ingestion.StatusTTL),
		a.Snapshots,
		a.Cache,
		analytics.NewEngine(EngineConfig(cfg.Analytics)),
		syllabus,
		validator.New(),
		a.Metrics,
		logger,
		service.IngestionConfig{Workers: cfg.Ingestion.RecomputeWorkers, Timeout: cfg.Ingestion.Timeout},
	)

	a.Tokens = service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("export storage: %w", err)
		}
		a.Exports = service.NewExportService(
			a.Snapshots,
			files,
			storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
			a.Metrics,
			logger,
			service.ExportConfig{
				APIPrefix: cfg.APIPrefix,
				Retention: cfg.Exports.Retention,
				Formats:   []export.Format{export.FormatCSV, export.FormatPDF, export.FormatXLSX},
				Workers:   cfg.Exports.WorkerConcurrency,
				Retries:   cfg.Exports.WorkerRetries,
			},
		)
		a.Ingestion.AddListener(a.Exports)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (service.StudentStore, error) {
	cfg := a.Config
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		repo := repository.NewStudentMongoRepository(client, db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		a.Checks["store"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
		a.Logger.Info("student store ready", zap.String("driver", cfg.StoreDriver), zap.String("database", cfg.Mongo.Database))
		return repo, nil
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := repository.NewStudentRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		a.Checks["store"] = db.PingContext
		a.Logger.Info("student store ready", zap.String("driver", cfg.StoreDriver), zap.String("database", cfg.Database.Name))
		return repo, nil
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// EngineConfig maps analytics settings onto the scoring engine.
func EngineConfig(cfg config.AnalyticsConfig) analytics.Config {
	out := analytics.DefaultConfig()
	if cfg.WeightFT > 0 {
		out.Weights[models.TestTypeFT] = cfg.WeightFT
	}
	if cfg.WeightNBTS > 0 {
		out.Weights[models.TestTypeNBTS] = cfg.WeightNBTS
	}
	if cfg.WeightAIATS > 0 {
		out.Weights[models.TestTypeAIATS] = cfg.WeightAIATS
	}
	if cfg.TrendMargin > 0 {
		out.TrendMargin = cfg.TrendMargin
	}
	if cfg.LeaderboardCap > 0 {
		out.LeaderboardCap = cfg.LeaderboardCap
	}
	return out
}

// loadSyllabus reads the chapter syllabus. A missing file leaves every
// subject unmapped rather than failing startup.
func loadSyllabus(path string, logger *zap.Logger) (*analytics.Syllabus, error) {
	if path == "" {
		return analytics.NewSyllabus(), nil
	}
	s, err := analytics.LoadSyllabusFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("syllabus file not found, chapters will be unmapped", zap.String("path", path))
			return analytics.NewSyllabus(), nil
		}
		return nil, err
	}
	return s, nil
}
