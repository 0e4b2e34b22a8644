// Package config provides configuration management for the request
// governor. It loads configuration from environment variables with
// sensible defaults and validates the result so the service starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: JWT signing secret (required, minimum 32 characters)
//
// Governance Configuration:
//   - CACHE_TTL: Response cache TTL (default: 60s)
//   - RATE_LIMIT_GLOBAL: Global policy requests per window (default: 100)
//   - RATE_LIMIT_GLOBAL_WINDOW: Global policy window (default: 60s)
//   - RATE_LIMIT_AUTH: Auth policy failed attempts per window (default: 5)
//   - RATE_LIMIT_AUTH_WINDOW: Auth policy window (default: 15m)
//   - RATE_LIMIT_MUTATE: Mutation policy requests per window (default: 30)
//   - RATE_LIMIT_MUTATE_WINDOW: Mutation policy window (default: 60s)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the request governor.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Redis configuration, the shared governance store
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       int    // Redis database number (0-15)
	RedisPoolSize int    // Redis connection pool size

	// JWT authentication configuration
	JWTSecret string // Secret key for JWT token verification (required)

	// Governance configuration
	CacheTTL     time.Duration // Response cache TTL for cached routes
	GlobalLimit  int           // Global policy: requests per window
	GlobalWindow time.Duration // Global policy: window length
	AuthLimit    int           // Auth policy: failed attempts per window
	AuthWindow   time.Duration // Auth policy: window length
	MutateLimit  int           // Mutation policy: requests per window
	MutateWindow time.Duration // Mutation policy: window length
}

// Load creates a new Config instance with values loaded from environment
// variables. Call Validate() on the result before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),

		JWTSecret: getEnv("JWT_SECRET", ""),

		CacheTTL:     getDurationEnv("CACHE_TTL", 60*time.Second),
		GlobalLimit:  getIntEnv("RATE_LIMIT_GLOBAL", 100),
		GlobalWindow: getDurationEnv("RATE_LIMIT_GLOBAL_WINDOW", 60*time.Second),
		AuthLimit:    getIntEnv("RATE_LIMIT_AUTH", 5),
		AuthWindow:   getDurationEnv("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
		MutateLimit:  getIntEnv("RATE_LIMIT_MUTATE", 30),
		MutateWindow: getDurationEnv("RATE_LIMIT_MUTATE_WINDOW", 60*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks that required values are present and all values are in
// range. The application should call this after Load and before starting.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.RedisDB)
	}
	if c.RedisPoolSize < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be positive, got %d", c.RedisPoolSize)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}

	for _, p := range []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"global", c.GlobalLimit, c.GlobalWindow},
		{"auth", c.AuthLimit, c.AuthWindow},
		{"mutate", c.MutateLimit, c.MutateWindow},
	} {
		if p.limit < 1 {
			return fmt.Errorf("%s rate limit must be positive, got %d", p.name, p.limit)
		}
		if p.window <= 0 {
			return fmt.Errorf("%s rate limit window must be positive, got %s", p.name, p.window)
		}
	}

	return nil
}
