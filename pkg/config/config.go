package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	StoreDriver string

	Database   DatabaseConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Analytics  AnalyticsConfig
	Ingestion  IngestionConfig
	Exports    ExportsConfig
	Scheduler  SchedulerConfig
	RateLimits RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// MongoConfig points the document store at a MongoDB deployment.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AnalyticsConfig tunes the scoring engine and leaderboard publication.
type AnalyticsConfig struct {
	SyllabusFile        string
	LeaderboardCap      int
	WeightFT            float64
	WeightNBTS          float64
	WeightAIATS         float64
	TrendMargin         float64
	LeaderboardCacheTTL time.Duration
}

// IngestionConfig governs the publish pipeline.
type IngestionConfig struct {
	RecomputeWorkers int
	StatusTTL        time.Duration
	Timeout          time.Duration
}

// ExportsConfig controls leaderboard export files and their download links.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	Retention         time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// SchedulerConfig toggles periodic rebuild and cleanup tasks. SyncInterval
// runs regardless of Enabled and picks up publishes made by other processes.
type SchedulerConfig struct {
	Enabled         bool
	RebuildInterval time.Duration
	CleanupInterval time.Duration
	SyncInterval    time.Duration
}

// RateLimitConfig throttles the public read endpoints per client.
type RateLimitConfig struct {
	PublicRPS   float64
	PublicBurst int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StoreDriver = strings.ToLower(v.GetString("STORE_DRIVER"))

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Mongo = MongoConfig{
		URI:            v.GetString("MONGO_URI"),
		Database:       v.GetString("MONGO_DB_NAME"),
		ConnectTimeout: parseDuration(v.GetString("MONGO_CONNECT_TIMEOUT"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Analytics = AnalyticsConfig{
		SyllabusFile:        v.GetString("SYLLABUS_FILE"),
		LeaderboardCap:      v.GetInt("LEADERBOARD_CAP"),
		WeightFT:            v.GetFloat64("WEIGHT_FT"),
		WeightNBTS:          v.GetFloat64("WEIGHT_NBTS"),
		WeightAIATS:         v.GetFloat64("WEIGHT_AIATS"),
		TrendMargin:         v.GetFloat64("TREND_MARGIN"),
		LeaderboardCacheTTL: parseDuration(v.GetString("LEADERBOARD_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Ingestion = IngestionConfig{
		RecomputeWorkers: v.GetInt("RECOMPUTE_WORKERS"),
		StatusTTL:        parseDuration(v.GetString("INGESTION_STATUS_TTL"), 24*time.Hour),
		Timeout:          parseDuration(v.GetString("INGESTION_TIMEOUT"), 2*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		Retention:         parseDuration(v.GetString("EXPORTS_RETENTION"), 72*time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:         v.GetBool("ENABLE_SCHEDULER"),
		RebuildInterval: parseDuration(v.GetString("REBUILD_INTERVAL"), time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), 6*time.Hour),
		SyncInterval:    parseDuration(v.GetString("SYNC_INTERVAL"), 15*time.Second),
	}

	cfg.RateLimits = RateLimitConfig{
		PublicRPS:   v.GetFloat64("PUBLIC_RATE_LIMIT_RPS"),
		PublicBurst: v.GetInt("PUBLIC_RATE_LIMIT_BURST"),
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("DB_HOST and DB_NAME are required for the postgres store")
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("MONGO_URI and MONGO_DB_NAME are required for the mongo store")
		}
	default:
		return errors.New("STORE_DRIVER must be postgres or mongo")
	}
	if c.Env == EnvProduction && c.JWT.Secret == "dev_secret" {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Analytics.LeaderboardCap <= 0 {
		return errors.New("LEADERBOARD_CAP must be greater than 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_analytics")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB_NAME", "exam_analytics")
	v.SetDefault("MONGO_CONNECT_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "exam-analytics")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SYLLABUS_FILE", "./data/test_syllabus.json")
	v.SetDefault("LEADERBOARD_CAP", 100)
	v.SetDefault("WEIGHT_FT", 1.0)
	v.SetDefault("WEIGHT_NBTS", 0.8)
	v.SetDefault("WEIGHT_AIATS", 1.3)
	v.SetDefault("TREND_MARGIN", 1.5)
	v.SetDefault("LEADERBOARD_CACHE_TTL", "10m")

	v.SetDefault("RECOMPUTE_WORKERS", 4)
	v.SetDefault("INGESTION_STATUS_TTL", "24h")
	v.SetDefault("INGESTION_TIMEOUT", "2m")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_RETENTION", "72h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("REBUILD_INTERVAL", "1h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "6h")
	v.SetDefault("SYNC_INTERVAL", "15s")

	v.SetDefault("PUBLIC_RATE_LIMIT_RPS", 20.0)
	v.SetDefault("PUBLIC_RATE_LIMIT_BURST", 40)
}

// isMissingFile reports a missing explicit .env file, which viper surfaces as a
// path error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
