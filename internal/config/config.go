package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	// Push batch limits; exceeding either rejects the request before any
	// item is processed.
	MaxItemsPerList int
	MaxTotalItems   int

	// Default per-entity-type cap for pull responses when the client does
	// not send maxItemsPerEntity.
	DefaultPullLimit int
}

func LoadConfig() (*Config, error) {
	maxPerList, err := getEnvInt("SYNC_MAX_ITEMS_PER_LIST", 100)
	if err != nil {
		return nil, err
	}
	maxTotal, err := getEnvInt("SYNC_MAX_TOTAL_ITEMS", 500)
	if err != nil {
		return nil, err
	}
	pullLimit, err := getEnvInt("SYNC_DEFAULT_PULL_LIMIT", 200)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		MaxItemsPerList:  maxPerList,
		MaxTotalItems:    maxTotal,
		DefaultPullLimit: pullLimit,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
