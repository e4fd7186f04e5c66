package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Egress    EgressConfig
	Commands  CommandConfig
	Presence  PresenceConfig
	Recording RecordingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/fieldwatch?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// EgressConfig holds the media egress engine endpoint.
type EgressConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	TimeoutSec int
}

// CommandConfig holds command dispatch and pending-command settings.
type CommandConfig struct {
	PendingTTL      time.Duration // validity window for a pending command
	DispatchTimeout time.Duration // per-channel send timeout
}

// PresenceConfig holds presence reconciliation settings.
type PresenceConfig struct {
	ReconcileInterval time.Duration
	StaleAfter        time.Duration // presence rows untouched longer than this are reported stale
}

// RecordingConfig holds recording lifecycle settings.
type RecordingConfig struct {
	MaxSessionAge time.Duration // orphaned Active sessions older than this are stopped by the worker
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Timeout returns the egress call timeout.
func (c EgressConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/fieldwatch?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fieldwatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "fieldwatch-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Egress: EgressConfig{
			BaseURL:    getEnv("EGRESS_BASE_URL", "http://localhost:7880"),
			APIKey:     getEnv("EGRESS_API_KEY", ""),
			APISecret:  getEnv("EGRESS_API_SECRET", ""),
			TimeoutSec: getEnvInt("EGRESS_TIMEOUT_SEC", 15),
		},
		Commands: CommandConfig{
			PendingTTL:      time.Duration(getEnvInt("PENDING_COMMAND_TTL_SEC", 30)) * time.Second,
			DispatchTimeout: time.Duration(getEnvInt("DISPATCH_TIMEOUT_SEC", 5)) * time.Second,
		},
		Presence: PresenceConfig{
			ReconcileInterval: time.Duration(getEnvInt("PRESENCE_RECONCILE_INTERVAL_SEC", 60)) * time.Second,
			StaleAfter:        time.Duration(getEnvInt("PRESENCE_STALE_AFTER_SEC", 300)) * time.Second,
		},
		Recording: RecordingConfig{
			MaxSessionAge: time.Duration(getEnvInt("RECORDING_MAX_AGE_MIN", 240)) * time.Minute,
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
