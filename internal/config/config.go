package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, loaded from CREWGATE_* env vars.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Features FeaturesConfig
	Jobs     JobsConfig
	LogLevel string
}

// ServerConfig holds HTTP (and optional gRPC) server configuration.
type ServerConfig struct {
	Addr            string
	GRPCAddr        string // empty disables the gRPC health listener
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimitPerSec int
	RateLimitBurst  int
	MaxBodyBytes    int64
}

// DatabaseConfig holds the relational store settings.
type DatabaseConfig struct {
	DSN            string
	MigrateOnStart bool
	MigrationsDir  string
	SeedsDir       string
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// FeaturesConfig holds feature-toggle cache settings.
type FeaturesConfig struct {
	CacheTTL time.Duration
}

// JobsConfig holds background sweeper settings.
type JobsConfig struct {
	SweepSchedule string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("CREWGATE_ADDR", ":8080"),
			GRPCAddr:        getEnv("CREWGATE_GRPC_ADDR", ""),
			ReadTimeout:     getEnvDuration("CREWGATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CREWGATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CREWGATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CREWGATE_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvList("CREWGATE_CORS_ORIGINS", nil),
			RateLimitPerSec: getEnvInt("CREWGATE_RATE_LIMIT_PER_SEC", 25),
			RateLimitBurst:  getEnvInt("CREWGATE_RATE_LIMIT_BURST", 50),
			MaxBodyBytes:    int64(getEnvInt("CREWGATE_MAX_BODY_BYTES", 1<<20)),
		},
		Database: DatabaseConfig{
			DSN:            getEnv("CREWGATE_PG_DSN", ""),
			MigrateOnStart: getEnvBool("CREWGATE_MIGRATE_ON_START", false),
			MigrationsDir:  getEnv("CREWGATE_MIGRATIONS_DIR", "migrations"),
			SeedsDir:       getEnv("CREWGATE_SEEDS_DIR", ""),
		},
		Auth: AuthConfig{
			Secret:     getEnv("CREWGATE_AUTH_SECRET", ""),
			Issuer:     getEnv("CREWGATE_AUTH_ISSUER", "crewgate"),
			AccessTTL:  getEnvDuration("CREWGATE_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvDuration("CREWGATE_REFRESH_TTL", 7*24*time.Hour),
		},
		Features: FeaturesConfig{
			CacheTTL: getEnvDuration("CREWGATE_FEATURE_CACHE_TTL", 30*time.Second),
		},
		Jobs: JobsConfig{
			SweepSchedule: getEnv("CREWGATE_SWEEP_SCHEDULE", "@every 15m"),
		},
		LogLevel: getEnv("CREWGATE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("CREWGATE_AUTH_SECRET is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Server.RateLimitPerSec <= 0 || c.Server.RateLimitBurst <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnvList(key string, def []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
