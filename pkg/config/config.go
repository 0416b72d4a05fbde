package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the forecast engine
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	ServiceName string
	Env         string // development, test, staging, production

	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Events   EventsConfig
	Advisor  AdvisorConfig
	Jobs     JobsConfig
	Forecast ForecastConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// EventsConfig selects the domain event transport
type EventsConfig struct {
	Backend string // none, redis, nats
	Channel string // redis channel / nats subject prefix
}

// AdvisorConfig holds the external model recommender configuration
type AdvisorConfig struct {
	Enabled           bool
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	BreakerFailures   int
	BreakerCooldown   time.Duration
}

// JobsConfig holds forecast job pool configuration
type JobsConfig struct {
	Workers       int
	QueueSize     int
	PollInterval  time.Duration
	RetentionDays int
	CleanupCron   string
}

// ForecastConfig holds backtest and strategy configuration
type ForecastConfig struct {
	MinTrainMonths  int
	TestMonths      int
	MaxHorizon      int
	ModelConfigPath string
	CacheTTL        time.Duration
	CacheMaxCost    int64
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "genxsop-forecast"),
		Env:         getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "genxsop"),
		},

		Events: EventsConfig{
			Backend: getEnv("EVENTS_BACKEND", "none"),
			Channel: getEnv("EVENTS_CHANNEL", "genxsop.events"),
		},

		Advisor: AdvisorConfig{
			Enabled:           getEnvAsBool("ADVISOR_ENABLED", false),
			APIKey:            getEnv("OPENAI_API_KEY", ""),
			BaseURL:           getEnv("OPENAI_BASE_URL", ""),
			Model:             getEnv("ADVISOR_MODEL", "gpt-4o-mini"),
			Timeout:           getEnvAsDuration("ADVISOR_TIMEOUT", "20s"),
			RequestsPerMinute: getEnvAsInt("ADVISOR_RPM", 30),
			BreakerFailures:   getEnvAsInt("ADVISOR_BREAKER_FAILURES", 3),
			BreakerCooldown:   getEnvAsDuration("ADVISOR_BREAKER_COOLDOWN", "1m"),
		},

		Jobs: JobsConfig{
			Workers:       getEnvAsInt("FORECAST_JOB_WORKERS", 2),
			QueueSize:     getEnvAsInt("FORECAST_JOB_QUEUE_SIZE", 64),
			PollInterval:  getEnvAsDuration("FORECAST_JOB_POLL_INTERVAL", "5s"),
			RetentionDays: getEnvAsInt("FORECAST_JOB_RETENTION_DAYS", 30),
			CleanupCron:   getEnv("FORECAST_JOB_CLEANUP_CRON", "0 0 3 * * *"),
		},

		Forecast: ForecastConfig{
			MinTrainMonths:  getEnvAsInt("FORECAST_MIN_TRAIN_MONTHS", 3),
			TestMonths:      getEnvAsInt("FORECAST_TEST_MONTHS", 6),
			MaxHorizon:      getEnvAsInt("FORECAST_MAX_HORIZON", 24),
			ModelConfigPath: getEnv("FORECAST_MODEL_CONFIG", ""),
			CacheTTL:        getEnvAsDuration("FORECAST_BACKTEST_CACHE_TTL", "10m"),
			CacheMaxCost:    int64(getEnvAsInt("FORECAST_BACKTEST_CACHE_MAX_COST", 1<<24)),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	switch c.Env {
	case "development", "test", "staging", "production":
	default:
		return fmt.Errorf("ENV must be one of: development, test, staging, production")
	}

	switch c.Events.Backend {
	case "none", "redis", "nats":
	default:
		return fmt.Errorf("EVENTS_BACKEND must be one of: none, redis, nats")
	}
	if c.Events.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("EVENTS_BACKEND=redis requires REDIS_ENABLED=true")
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("FORECAST_JOB_WORKERS must be >= 1")
	}
	if c.Jobs.RetentionDays < 1 {
		return fmt.Errorf("FORECAST_JOB_RETENTION_DAYS must be >= 1")
	}

	if c.Forecast.MinTrainMonths < 1 || c.Forecast.TestMonths < 1 {
		return fmt.Errorf("FORECAST_MIN_TRAIN_MONTHS and FORECAST_TEST_MONTHS must be >= 1")
	}
	if c.Forecast.MaxHorizon < 1 {
		return fmt.Errorf("FORECAST_MAX_HORIZON must be >= 1")
	}

	// advisor는 키가 없으면 비활성 취급 (deterministic fallback)
	if c.Advisor.Enabled && c.Advisor.APIKey == "" {
		c.Advisor.Enabled = false
	}

	return nil
}

// RequireDatabase fails when no DATABASE_URL is configured
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
