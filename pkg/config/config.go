package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Sequence    SequenceConfig
	Migration   MigrationConfig
	Transition  TransitionConfig
	Progression ProgressionConfig
	Reports     ReportsConfig
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

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify tokens issued by the
// campus auth service. The engine never issues tokens itself.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SequenceConfig controls registration number generation.
type SequenceConfig struct {
	Prefix string
	Width  int
}

// MigrationConfig tunes the application-to-registration pipeline.
type MigrationConfig struct {
	SweepDelay        time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// TransitionConfig controls the period transition engine.
type TransitionConfig struct {
	PointerCacheTTL time.Duration
}

// ProgressionConfig carries fallbacks applied when a track has no rule row.
type ProgressionConfig struct {
	DefaultRequiredPeriods int
	LevelStep              int
	MaxLevel               int
}

// ReportsConfig configures batch outcome report files.
type ReportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sequence = SequenceConfig{
		Prefix: v.GetString("SEQUENCE_PREFIX"),
		Width:  v.GetInt("SEQUENCE_WIDTH"),
	}

	cfg.Migration = MigrationConfig{
		SweepDelay:        parseDuration(v.GetString("MIGRATION_SWEEP_DELAY"), 200*time.Millisecond),
		WorkerConcurrency: v.GetInt("MIGRATION_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("MIGRATION_WORKER_RETRIES"),
	}

	cfg.Transition = TransitionConfig{
		PointerCacheTTL: parseDuration(v.GetString("PERIOD_POINTER_CACHE_TTL"), time.Minute),
	}

	cfg.Progression = ProgressionConfig{
		DefaultRequiredPeriods: v.GetInt("PROGRESSION_DEFAULT_REQUIRED_PERIODS"),
		LevelStep:              v.GetInt("PROGRESSION_LEVEL_STEP"),
		MaxLevel:               v.GetInt("PROGRESSION_MAX_LEVEL"),
	}

	cfg.Reports = ReportsConfig{
		Enabled:         v.GetBool("ENABLE_REPORTS"),
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academic_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SEQUENCE_PREFIX", "UCAES")
	v.SetDefault("SEQUENCE_WIDTH", 4)

	v.SetDefault("MIGRATION_SWEEP_DELAY", "200ms")
	v.SetDefault("MIGRATION_WORKER_CONCURRENCY", 1)
	v.SetDefault("MIGRATION_WORKER_RETRIES", 3)

	v.SetDefault("PERIOD_POINTER_CACHE_TTL", "1m")

	v.SetDefault("PROGRESSION_DEFAULT_REQUIRED_PERIODS", 2)
	v.SetDefault("PROGRESSION_LEVEL_STEP", 100)
	v.SetDefault("PROGRESSION_MAX_LEVEL", 400)

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
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
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
