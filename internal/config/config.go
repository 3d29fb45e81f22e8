package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every environment-sourced setting. It is built once in
// main and passed by reference into the aggregators so tests can inject
// values without touching the process environment.
type Config struct {
	DBHost    string
	DBPort    string
	DBName    string
	DBUser    string
	DBPass    string
	DBSSLMode string

	CFZoneID  string
	CFAPIKey  string
	CFAPIBase string

	ListenPort      int
	LogLevel        string
	RateLimit       int
	RateLimitWindow time.Duration
}

const DefaultCFAPIBase = "https://api.cloudflare.com/client/v4"

func Load() *Config {
	return &Config{
		DBHost:    getEnv("DB_HOST", "localhost"),
		DBPort:    getEnv("DB_PORT", "5432"),
		DBName:    getEnv("DB_NAME", "immich"),
		DBUser:    getEnv("DB_USER", "immich"),
		DBPass:    getEnv("DB_PASS", "immich"),
		DBSSLMode: getEnv("DB_SSLMODE", "disable"),

		// No committed defaults for the CloudFlare credentials; the
		// "configured" flag in the metrics payload reports their absence.
		CFZoneID:  os.Getenv("CF_ZONE_ID"),
		CFAPIKey:  os.Getenv("CF_API_KEY"),
		CFAPIBase: getEnv("CF_API_BASE", DefaultCFAPIBase),

		ListenPort:      getEnvInt("PORT", 8082),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RateLimit:       getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

// CloudflareConfigured reports whether both CDN credentials are present.
func (c *Config) CloudflareConfigured() bool {
	return c.CFZoneID != "" && c.CFAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
