package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"movie-tracker/internal/models"
)

// Storage drivers for the film library.
const (
	StorageFile     = "file"
	StorageBolt     = "bolt"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the movie tracker.
type Config struct {
	Bot       BotConfig
	TMDB      TMDBConfig
	Storage   StorageConfig
	DB        DBConfig
	Redis     RedisConfig
	Recommend RecommendConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Port      string `validate:"required,numeric"`
	LogLevel  string `validate:"oneof=debug info warn error"`
}

// BotConfig holds the chat transport credential. Requests to the HTTP
// gateway must present it as a bearer token.
type BotConfig struct {
	Token string
}

// TMDBConfig holds TMDB API configuration.
type TMDBConfig struct {
	APIKey            string        `validate:"required"`
	BaseURL           string        `validate:"required,url"`
	Language          string        `validate:"required"`
	Timeout           time.Duration `validate:"gt=0"`
	MaxRetries        int           `validate:"gte=0,lte=5"`
	RetryDelay        time.Duration `validate:"gte=0"`
	RequestsPerSecond float64       `validate:"gt=0"`
	GenreCacheTTL     time.Duration `validate:"gte=0"`
}

// StorageConfig selects where the film library is persisted.
type StorageConfig struct {
	Driver   string `validate:"oneof=file bolt postgres"`
	FilePath string `validate:"required_if=Driver file"`
	BoltPath string `validate:"required_if=Driver bolt"`
}

// DBConfig holds PostgreSQL configuration.
type DBConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SSLRootCert string
}

// DSN returns the PostgreSQL connection string.
func (d DBConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
	if d.SSLRootCert != "" {
		dsn += fmt.Sprintf(" sslrootcert=%s", d.SSLRootCert)
	}
	return dsn
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RecommendConfig holds recommendation settings.
type RecommendConfig struct {
	Limit int `validate:"gte=1,lte=20"`
}

// SessionConfig holds conversation session settings.
type SessionConfig struct {
	IdleTimeout     time.Duration `validate:"gt=0"`
	DuplicatePolicy models.DuplicatePolicy `validate:"duplicate_policy"`
}

// RateLimitConfig holds per-user request limits for the HTTP gateway.
type RateLimitConfig struct {
	MaxRequests int `validate:"gte=1"`
	WindowSec   int `validate:"gte=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duplicate_policy", func(fl validator.FieldLevel) bool {
		return models.DuplicatePolicy(fl.Field().String()).Valid()
	})
	return v
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Bot: BotConfig{
			Token: os.Getenv("BOT_TOKEN"),
		},
		TMDB: TMDBConfig{
			APIKey:            os.Getenv("TMDB_API_KEY"),
			BaseURL:           getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
			Language:          getEnv("TMDB_LANGUAGE", "en-US"),
			Timeout:           getEnvDuration("TMDB_TIMEOUT", 10*time.Second),
			MaxRetries:        getEnvInt("TMDB_MAX_RETRIES", 2),
			RetryDelay:        getEnvDuration("TMDB_RETRY_DELAY", 200*time.Millisecond),
			RequestsPerSecond: getEnvFloat("TMDB_REQUESTS_PER_SECOND", 10),
			GenreCacheTTL:     getEnvDuration("GENRE_CACHE_TTL", 24*time.Hour),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(getEnv("STORAGE_DRIVER", StorageFile)),
			FilePath: getEnv("DATA_FILE", "films.json"),
			BoltPath: getEnv("BOLT_PATH", "films.bolt"),
		},
		DB: DBConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "movie_tracker"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			SSLRootCert: getEnv("DB_SSLROOTCERT", ""),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Recommend: RecommendConfig{
			Limit: getEnvInt("RECOMMEND_LIMIT", 5),
		},
		Session: SessionConfig{
			IdleTimeout:     getEnvDuration("SESSION_IDLE_TIMEOUT", 10*time.Minute),
			DuplicatePolicy: models.DuplicatePolicy(strings.ToLower(getEnv("DUPLICATE_POLICY", string(models.DuplicateConfirm)))),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 30),
			WindowSec:   getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		},
		Port:     getEnv("SERVER_PORT", "8080"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
