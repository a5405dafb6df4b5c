package app

import (
	"os"
	"strconv"
	"time"

	"github.com/openshelf-dev/identity/pkg/jwtx"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens

	Algorithm      string // Optional: token signing algorithm (EdDSA, HS256) (default: EdDSA)
	SigningKeyFile string // Optional: path to PEM-encoded Ed25519 private key; ephemeral if unset
	SigningSecret  string // Required for HS256: shared secret, min 32 bytes

	DatabaseFile string // Optional: path to SQLite database file (default: ./identity.db)
	PepperFile   string // Optional: path to pepper file for password hashing (default: ./pepper)

	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	PendingTTL time.Duration // Second-factor pending token lifetime (default: 10m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 168h)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping sweep interval (default: 1h)
	RetentionWindow      time.Duration // Soft-deleted principal retention (default: 720h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               os.Getenv("IDENTITY_ISSUER"),
		Algorithm:            getEnvOrDefault("IDENTITY_ALGORITHM", "EdDSA"),
		SigningKeyFile:       os.Getenv("IDENTITY_SIGNING_KEY_FILE"),
		SigningSecret:        os.Getenv("IDENTITY_SIGNING_SECRET"),
		DatabaseFile:         getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		PepperFile:           getEnvOrDefault("IDENTITY_PEPPER_FILE", "pepper"),
		AccessTTL:            getEnvDurationOrDefault("IDENTITY_ACCESS_TTL", jwtx.DefaultAccessTTL),
		PendingTTL:           getEnvDurationOrDefault("IDENTITY_PENDING_TTL", jwtx.DefaultPendingTTL),
		RefreshTTL:           getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", jwtx.DefaultRefreshTTL),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		RetentionWindow:      getEnvDurationOrDefault("RETENTION_WINDOW", 30*24*time.Hour),
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "openshelf-identity"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
