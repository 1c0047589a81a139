// Package config collects the service configuration. Values are read
// once in cmd and injected into components at construction time.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is everything the service needs to run.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// RedisAddr, RedisPassword, RedisDB locate the persistence backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// VerifyToken is the webhook verification secret.
	VerifyToken string
	// AccessToken authenticates outbound Cloud API sends.
	AccessToken string
	// GraphBaseURL overrides the Cloud API endpoint (tests, proxies).
	GraphBaseURL string
	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// FromEnv builds a Config from environment variables, leaving flag
// overrides to the caller.
func FromEnv() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntOr("REDIS_DB", 0),
		VerifyToken:   os.Getenv("WHATSAPP_WEBHOOK_VERIFICATION_TOKEN"),
		AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		GraphBaseURL:  os.Getenv("GRAPH_API_BASE_URL"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
	}
}

// Validate reports the first missing required value.
func (c Config) Validate() error {
	if c.VerifyToken == "" {
		return fmt.Errorf("webhook verification token is not set")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("whatsapp access token is not set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
