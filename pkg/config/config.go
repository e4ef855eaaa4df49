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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Exports   ExportsConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes editing sessions and the change feed.
type SchedulerConfig struct {
	SessionTTL       time.Duration
	SnapshotCacheTTL time.Duration
	FeedEnabled      bool
	FeedChannel      string
	RefreshWorkers   int
	RefreshRetries   int
	Defaults         SchedulerDefaults
}

// SchedulerDefaults seeds the controller settings of new sessions.
type SchedulerDefaults struct {
	SubmitTime       string
	Location         string
	DurationCapOne   int
	DurationCapTwo   int
	DurationCapThree int
	GapMinutes       int
	StepDuration     int
	MinDuration      int
	MaxDuration      int
	Locked           bool
}

// ExportsConfig controls schedule exports.
type ExportsConfig struct {
	PDFTitle string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		SessionTTL:       parseDuration(v.GetString("SCHEDULER_SESSION_TTL"), 8*time.Hour),
		SnapshotCacheTTL: parseDuration(v.GetString("SCHEDULER_SNAPSHOT_CACHE_TTL"), 2*time.Minute),
		FeedEnabled:      v.GetBool("SCHEDULER_FEED_ENABLED"),
		FeedChannel:      v.GetString("SCHEDULER_FEED_CHANNEL"),
		RefreshWorkers:   v.GetInt("SCHEDULER_REFRESH_WORKERS"),
		RefreshRetries:   v.GetInt("SCHEDULER_REFRESH_RETRIES"),
		Defaults: SchedulerDefaults{
			SubmitTime:       v.GetString("SCHEDULER_DEFAULT_SUBMIT_TIME"),
			Location:         v.GetString("SCHEDULER_DEFAULT_LOCATION"),
			DurationCapOne:   v.GetInt("SCHEDULER_DURATION_CAP_ONE"),
			DurationCapTwo:   v.GetInt("SCHEDULER_DURATION_CAP_TWO"),
			DurationCapThree: v.GetInt("SCHEDULER_DURATION_CAP_THREE"),
			GapMinutes:       v.GetInt("SCHEDULER_GAP_MINUTES"),
			StepDuration:     v.GetInt("SCHEDULER_STEP_DURATION"),
			MinDuration:      v.GetInt("SCHEDULER_MIN_DURATION"),
			MaxDuration:      v.GetInt("SCHEDULER_MAX_DURATION"),
			Locked:           v.GetBool("SCHEDULER_LOCKED"),
		},
	}

	cfg.Exports = ExportsConfig{
		PDFTitle: v.GetString("EXPORT_PDF_TITLE"),
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
	v.SetDefault("DB_NAME", "lesson_queue")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_SESSION_TTL", "8h")
	v.SetDefault("SCHEDULER_SNAPSHOT_CACHE_TTL", "2m")
	v.SetDefault("SCHEDULER_FEED_ENABLED", true)
	v.SetDefault("SCHEDULER_FEED_CHANNEL", "schedule:changes")
	v.SetDefault("SCHEDULER_REFRESH_WORKERS", 2)
	v.SetDefault("SCHEDULER_REFRESH_RETRIES", 3)

	v.SetDefault("SCHEDULER_DEFAULT_SUBMIT_TIME", "09:00")
	v.SetDefault("SCHEDULER_DEFAULT_LOCATION", "")
	v.SetDefault("SCHEDULER_DURATION_CAP_ONE", 60)
	v.SetDefault("SCHEDULER_DURATION_CAP_TWO", 90)
	v.SetDefault("SCHEDULER_DURATION_CAP_THREE", 120)
	v.SetDefault("SCHEDULER_GAP_MINUTES", 0)
	v.SetDefault("SCHEDULER_STEP_DURATION", 30)
	v.SetDefault("SCHEDULER_MIN_DURATION", 30)
	v.SetDefault("SCHEDULER_MAX_DURATION", 360)
	v.SetDefault("SCHEDULER_LOCKED", true)

	v.SetDefault("EXPORT_PDF_TITLE", "Lesson schedule")
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
