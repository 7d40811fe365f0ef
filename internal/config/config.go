package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// WorkerSecret authenticates worker callbacks on the progress relay.
	WorkerSecret string

	CADServiceURL string

	Worker WorkerConfig
}

// WorkerConfig tunes the job queue worker pool.
type WorkerConfig struct {
	Concurrency     int
	MaxAttempts     int
	JobTTL          time.Duration
	IdempotencyTTL  time.Duration
	HeartbeatTTL    time.Duration
	DrainTimeout    time.Duration
	JanitorInterval time.Duration

	// RetentionDays bounds how long terminal job rows are kept. Zero or
	// negative disables the sweep.
	RetentionDays     int
	RetentionInterval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "quoteforge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quoteforge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		WorkerSecret: strings.TrimSpace(getenv("WORKER_SECRET", "")),

		CADServiceURL: strings.TrimRight(getenv("CAD_SERVICE_URL", "http://localhost:8000"), "/"),

		Worker: WorkerConfig{
			Concurrency:     getenvInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:     getenvInt("WORKER_MAX_ATTEMPTS", 5),
			JobTTL:          getenvDuration("JOB_TTL", 7*24*time.Hour),
			IdempotencyTTL:  getenvDuration("IDEMPOTENCY_TTL", 7*24*time.Hour),
			HeartbeatTTL:    getenvDuration("WORKER_HEARTBEAT_TTL", 30*time.Second),
			DrainTimeout:    getenvDuration("WORKER_DRAIN_TIMEOUT", 30*time.Second),
			JanitorInterval: getenvDuration("JANITOR_INTERVAL", 15*time.Second),

			RetentionDays:     getenvInt("JOB_RETENTION_DAYS", 30),
			RetentionInterval: getenvDuration("JOB_RETENTION_INTERVAL", time.Hour),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
