// Package config loads client settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the client needs to talk to the hosted store.
type Config struct {
	StoreURL    string
	APIKey      string
	BearerToken string
	UserID      string // CLI credential store; empty means unauthenticated
	Timeout     time.Duration
	LogLevel    string
	LogJSON     bool

	DevstorePort string
}

// Load reads .env if present, then the process environment.
func Load() *Config {
	_ = godotenv.Load() // missing .env is fine

	return &Config{
		StoreURL:     getEnv("STORE_URL", "http://localhost:8090"),
		APIKey:       getEnv("STORE_API_KEY", "dev-key"),
		BearerToken:  getEnv("STORE_TOKEN", ""),
		UserID:       getEnv("STORE_USER_ID", ""),
		Timeout:      getDuration("STORE_TIMEOUT", 30*time.Second),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogJSON:      getEnv("LOG_FORMAT", "console") == "json",
		DevstorePort: getEnv("DEVSTORE_PORT", "8090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
