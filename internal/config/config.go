package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Admin   AdminConfig
	Matcher MatcherConfig
	Journal JournalConfig
	API     APIConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type AdminConfig struct {
	// Identity is the opaque caller identity allowed to pause and resume
	// operations and to cancel entities on behalf of their owners.
	Identity string
}

type MatcherConfig struct {
	ProximityWeight   float64
	FulfillmentWeight float64
	UrgencyWeight     float64
	QueryRadius       int
	AutoMatch         bool
}

type JournalConfig struct {
	// BufferSize caps how many committed changes may queue up behind the
	// single persistence worker before submissions block.
	BufferSize int
}

type APIConfig struct {
	RateLimit int // requests per second, global
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Admin: AdminConfig{
			Identity: getEnv("ADMIN_IDENTITY", ""),
		},
		Matcher: MatcherConfig{
			ProximityWeight:   getEnvFloat("MATCH_PROXIMITY_WEIGHT", 0.5),
			FulfillmentWeight: getEnvFloat("MATCH_FULFILLMENT_WEIGHT", 0.3),
			UrgencyWeight:     getEnvFloat("MATCH_URGENCY_WEIGHT", 0.2),
			QueryRadius:       getEnvInt("MATCH_QUERY_RADIUS", 4),
			AutoMatch:         getEnvBool("MATCH_AUTO", true),
		},
		Journal: JournalConfig{
			BufferSize: getEnvInt("JOURNAL_BUFFER_SIZE", 64),
		},
		API: APIConfig{
			RateLimit: getEnvInt("API_RATE_LIMIT", 10),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/aidmatch.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Admin.Identity == "" {
		return fmt.Errorf("ADMIN_IDENTITY must be set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	for name, w := range map[string]float64{
		"MATCH_PROXIMITY_WEIGHT":   c.Matcher.ProximityWeight,
		"MATCH_FULFILLMENT_WEIGHT": c.Matcher.FulfillmentWeight,
		"MATCH_URGENCY_WEIGHT":     c.Matcher.UrgencyWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, w)
		}
	}
	if c.Matcher.QueryRadius < 0 || c.Matcher.QueryRadius > 7 {
		return fmt.Errorf("query radius must be within 0..7, got %d", c.Matcher.QueryRadius)
	}

	if c.Journal.BufferSize < 1 {
		return fmt.Errorf("journal buffer size must be at least 1, got %d", c.Journal.BufferSize)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
