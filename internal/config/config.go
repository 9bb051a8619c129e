// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/main.go needs to wire the service.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	MediaSecret   string
	MediaTokenTTL time.Duration

	MatchPollInterval time.Duration
	QueueEntryTTL     time.Duration
	SessionMarkerTTL  time.Duration
	SkipCooldown      time.Duration
	StoreTimeout      time.Duration

	RecoverySchedule string
	CleanupSchedule  string
}

// IsDevelopment reports whether APP_ENV is "development".
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads .env (if present) and the process environment.
// A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:      getEnv("APP_ENV", "production"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=pairlivedb port=5432 sslmode=disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		MediaSecret:   getEnv("MEDIA_SECRET", ""),
		MediaTokenTTL: getEnvDuration("MEDIA_TOKEN_TTL", time.Hour),

		MatchPollInterval: getEnvDuration("MATCH_POLL_INTERVAL", 2*time.Second),
		QueueEntryTTL:     getEnvDuration("QUEUE_ENTRY_TTL", 5*time.Minute),
		SessionMarkerTTL:  getEnvDuration("SESSION_MARKER_TTL", 4*time.Hour),
		SkipCooldown:      getEnvDuration("SKIP_COOLDOWN", 10*time.Second),
		StoreTimeout:      getEnvDuration("STORE_TIMEOUT", 3*time.Second),

		RecoverySchedule: getEnv("RECOVERY_SCHEDULE", "0 3 * * *"),
		CleanupSchedule:  getEnv("CLEANUP_SCHEDULE", "0 * * * *"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
