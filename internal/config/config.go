package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	Storage     string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr         string
	RedisPassword     string
	PrincipalCacheTTL time.Duration

	JWTSecret            string
	CORSOrigins          []string
	CORSMaxAge           time.Duration
	CORSAllowCredentials bool
	RateLimitRPM         int
	WriteRateLimitRPM    int

	TrashRetention     time.Duration
	TrashPurgeInterval time.Duration
	TrashPurgeBatch    int
	TrashRestoreLease  time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),
		Storage:                 strings.ToLower(getEnv("APP_STORAGE", StoragePostgres)),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 2)),
		RedisAddr:               strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		PrincipalCacheTTL:       getDuration("PRINCIPAL_CACHE_TTL", 15*time.Minute),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		CORSMaxAge:              getDuration("CORS_MAX_AGE", time.Hour),
		CORSAllowCredentials:    getBool("CORS_ALLOW_CREDENTIALS", false),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 120),
		WriteRateLimitRPM:       getInt("WRITE_RATE_LIMIT_RPM", 30),
		TrashRetention:          getDuration("TRASH_RETENTION", 720*time.Hour),
		TrashPurgeInterval:      getDuration("TRASH_PURGE_INTERVAL", time.Hour),
		TrashPurgeBatch:         getInt("TRASH_PURGE_BATCH", 500),
		TrashRestoreLease:       getDuration("TRASH_RESTORE_LEASE", time.Minute),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "pretty"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when APP_STORAGE=%s", StoragePostgres)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("APP_STORAGE must be %q or %q", StoragePostgres, StorageMemory)
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.CORSMaxAge < 0 {
		return fmt.Errorf("CORS_MAX_AGE cannot be negative")
	}

	if c.CORSAllowCredentials {
		for _, origin := range c.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ALLOW_CREDENTIALS requires explicit CORS_ORIGINS")
			}
		}
	}

	if c.TrashRetention <= 0 {
		return fmt.Errorf("TRASH_RETENTION must be positive")
	}

	if c.TrashPurgeInterval <= 0 {
		return fmt.Errorf("TRASH_PURGE_INTERVAL must be positive")
	}

	if c.TrashPurgeBatch <= 0 {
		return fmt.Errorf("TRASH_PURGE_BATCH must be positive")
	}

	if c.TrashRestoreLease <= 0 {
		return fmt.Errorf("TRASH_RESTORE_LEASE must be positive")
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
