package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listeners
	HTTPAddr    string
	MetricsAddr string

	// Datasets
	DatasetsFile string

	// Infrastructure
	SQLitePath    string // "off" disables snapshots and the run journal
	RedisAddr     string // empty disables the result cache and param store
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// S3 sources
	AWSRegion     string
	S3Endpoint    string
	S3PathStyle   bool
	S3AccessKeyID string
	S3SecretKey   string

	// Admin
	AdminTOTPSecret string // empty leaves admin endpoints open

	// Observability
	LogLevel    string
	TraceStdout bool
}

// Load reads .env (if present) and then the environment, applying defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}

	return &Config{
		HTTPAddr:    getEnv("TREND_HTTP_ADDR", ":8501"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9100"),

		DatasetsFile: getEnv("DATASETS_FILE", "datasets.yaml"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/trend.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SEC", 600)) * time.Second,

		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3PathStyle:   getEnvBool("S3_PATH_STYLE", false),
		S3AccessKeyID: getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		TraceStdout: getEnvBool("TRACE_STDOUT", false),
	}
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// SQLiteEnabled reports whether a SQLite path is configured.
func (c *Config) SQLiteEnabled() bool { return c.SQLitePath != "" && c.SQLitePath != "off" }

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] %s=%q is not a boolean, using %v", key, v, fallback)
		return fallback
	}
	return b
}
