package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crm-service/internal/pkg/jwt"
)

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type AppConfig struct {
	// Server
	HTTPAddr       string
	AppEnv         string
	AllowedOrigins []string

	// Store
	StoreBackend       string
	DatabaseURL        string
	FirestoreProjectID string

	// Redis; an empty address runs without events fan-out or migration lock
	RedisAddr     string
	RedisPass     string
	EventsChannel string

	// JWT
	JWT jwt.Config

	// Engines
	ResolverScanLimit int
	MigrationLockTTL  time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		AppEnv:   getEnv("APP_ENV", "production"),

		AllowedOrigins: getEnvSlice("WS_ALLOWED_ORIGINS", nil),

		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPass:     getEnv("REDIS_PASS", ""),
		EventsChannel: getEnv("EVENTS_CHANNEL", "crm:events"),

		JWT: jwt.Config{
			PrivPath: getEnv("JWT_PRIVATE_KEY_PATH", "/app/secrets/jwt_private.pem"),
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "crm-auth"),
			Audience: getEnv("JWT_AUDIENCE", "crm-admin"),
			TTL:      getEnvDuration("JWT_TTL", 12*time.Hour),
			KID:      getEnv("JWT_KID", "crm-key"),
		},

		ResolverScanLimit: getEnvInt("RESOLVER_SCAN_LIMIT", 500),
		MigrationLockTTL:  getEnvDuration("MIGRATION_LOCK_TTL", 30*time.Minute),
	}
}

// Validate reports settings the selected backend cannot start without.
func (c AppConfig) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.ResolverScanLimit < 0 {
		return fmt.Errorf("RESOLVER_SCAN_LIMIT must not be negative")
	}
	return nil
}

func (c AppConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
