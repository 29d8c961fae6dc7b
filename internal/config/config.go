package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (optional status cache — empty disables caching)
	RedisURL string

	// External renderer
	RendererURL      string // submission endpoint of the external renderer
	RendererAPIKey   string // bearer token for the renderer (empty = unauthenticated)
	CallbackBaseURL  string // public base URL of this backend, used to build webhook callback URLs
	WebhookSecret    string // HMAC secret for inbound renderer callbacks (empty = verification skipped, dev mode)
	StatusCacheTTLMs int    // TTL for cached status reads

	// Storage
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		RendererURL:        getEnv("RENDERER_URL", ""),
		RendererAPIKey:     getEnv("RENDERER_API_KEY", ""),
		CallbackBaseURL:    getEnv("CALLBACK_BASE_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		StatusCacheTTLMs:   getEnvInt("STATUS_CACHE_TTL_MS", 2000),
		StorageURL:         getEnv("STORAGE_URL", ""),
		StorageServiceKey:  getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "aidobe-videos"),
	}

	// Validate required fields. DATABASE_URL is deliberately optional: main
	// falls back to an in-memory job store for local development.
	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	// RENDERER_URL and CALLBACK_BASE_URL are deliberately not validated here:
	// the dispatcher fails fast with a configuration error on the first
	// enqueue, so the read-only endpoints keep working when the renderer is
	// not configured yet.

	return cfg, nil
}

// RendererCallbackURL is the absolute completion-callback URL handed to the
// renderer. Returns "" when CALLBACK_BASE_URL is unset so the dispatcher's
// configuration guard trips on enqueue instead of submitting a relative URL
// the renderer could never call back on.
func (c *Config) RendererCallbackURL() string {
	if c.CallbackBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.CallbackBaseURL, "/") + "/webhooks/render/complete"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
