package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              string
	LogLevel          string
	DatabaseURL       string
	TokenSecret       string
	TokenTTL          time.Duration
	MigrationsDir     string
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
}

func Load() Config {
	cfg := Config{
		Port:              envOrDefault("TIMETRACKER_PORT", "8080"),
		LogLevel:          envOrDefault("TIMETRACKER_LOG_LEVEL", "info"),
		DatabaseURL:       envOrDefault("TIMETRACKER_DATABASE_URL", "file:timetracker.db"),
		TokenSecret:       strings.TrimSpace(os.Getenv("TIMETRACKER_TOKEN_SECRET")),
		TokenTTL:          durationOrDefault("TIMETRACKER_TOKEN_TTL", time.Hour),
		MigrationsDir:     envOrDefault("TIMETRACKER_MIGRATIONS_DIR", "migrations"),
		HeartbeatInterval: durationOrDefault("TIMETRACKER_HEARTBEAT_INTERVAL", 30*time.Second),
		SweepInterval:     durationOrDefault("TIMETRACKER_SWEEP_INTERVAL", 30*time.Second),
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
