package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string   `validate:"required"`
	Environment    string   `validate:"required,oneof=development production test"`
	LogLevel       string   `validate:"required,oneof=debug info warn error"`
	AllowedOrigins []string `validate:"-"`

	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"-"`

	// Sync scheduling
	Timezone         string        `validate:"required,timezone"`
	SyncScheduleTime string        `validate:"required,datetime=15:04"`
	SyncTimeout      time.Duration `validate:"min=5s,max=5m"`

	// Manual refresh throttling
	ManualRefreshMaxPerHour     int  `validate:"min=0,max=20"`
	RateLimitWindowMinutes      int  `validate:"min=1,max=1440"`
	AdminBypassRateLimit        bool `validate:"-"`
	BufferImmediateFirstRequest bool `validate:"-"`

	// CSV download cache
	CSVCachePath      string `validate:"required"`
	CSVCacheMaxSizeMB int    `validate:"min=10,max=5000"`
	CacheTTLHours     int    `validate:"min=1,max=168"`

	// Push channel
	WSHeartbeatInterval time.Duration `validate:"min=5s,max=5m"`
	WSMaxConnections    int           `validate:"min=1,max=1000"`
}

// Load loads configuration from environment variables and validates it
// against the schema defined by the struct tags.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "3190"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		Timezone:         getEnv("TZ", "America/New_York"),
		SyncScheduleTime: getEnv("SYNC_SCHEDULE_TIME", "10:00"),
		SyncTimeout:      getDurationEnv("SYNC_TIMEOUT", 30*time.Second),

		ManualRefreshMaxPerHour:     getIntEnv("MANUAL_REFRESH_MAX_PER_HOUR", 3),
		RateLimitWindowMinutes:      getIntEnv("RATE_LIMIT_WINDOW_MINUTES", 60),
		AdminBypassRateLimit:        getBoolEnv("ADMIN_BYPASS_RATE_LIMIT", true),
		BufferImmediateFirstRequest: getBoolEnv("BUFFER_IMMEDIATE_FIRST_REQUEST", true),

		CSVCachePath:      getEnv("CSV_CACHE_PATH", "./data/csv_cache"),
		CSVCacheMaxSizeMB: getIntEnv("CSV_CACHE_MAX_SIZE_MB", 500),
		CacheTTLHours:     getIntEnv("CACHE_TTL_HOURS", 24),

		WSHeartbeatInterval: getDurationEnv("WS_HEARTBEAT_INTERVAL", 30*time.Second),
		WSMaxConnections:    getIntEnv("WS_MAX_CONNECTIONS", 100),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Location resolves the configured IANA time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ScheduleHourMinute splits SYNC_SCHEDULE_TIME into its components.
func (c *Config) ScheduleHourMinute() (hour, minute int, err error) {
	parts := strings.SplitN(c.SyncScheduleTime, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid sync schedule time %q", c.SyncScheduleTime)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sync schedule hour: %w", err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sync schedule minute: %w", err)
	}
	return hour, minute, nil
}

// RateLimitWindow returns the rate-limit bucket size as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMinutes) * time.Minute
}

// CacheTTL returns the dashboard snapshot cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
