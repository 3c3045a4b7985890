package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Guest lifecycle
	GuestTTL           time.Duration
	GuestSweepInterval time.Duration

	// Google OAuth
	GoogleClientID        string
	GoogleMobileClientIDs []string

	// Emergent OAuth
	EmergentSessionDataURL string

	// Password reset
	ResetCodeTTL time.Duration

	// SMTP (optional; reset codes are logged when unset)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Database defaults (matches podman setup: make postgres-start)
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 25432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "unifra_auth"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT defaults
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "unifra-auth"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		// Guest defaults
		GuestTTL:           getEnvDuration("GUEST_TTL", 24*time.Hour),
		GuestSweepInterval: getEnvDuration("GUEST_SWEEP_INTERVAL", time.Hour),

		// Google OAuth (optional)
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleMobileClientIDs: getEnvList("GOOGLE_MOBILE_CLIENT_IDS"),

		// Emergent OAuth (optional)
		EmergentSessionDataURL: getEnv("EMERGENT_SESSION_DATA_URL", ""),

		// Password reset
		ResetCodeTTL: getEnvDuration("RESET_CODE_TTL", 15*time.Minute),

		// SMTP (optional)
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "UniFRA"),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GuestTTL <= 0 {
		return nil, fmt.Errorf("GUEST_TTL must be positive")
	}
	if cfg.GuestSweepInterval <= 0 {
		return nil, fmt.Errorf("GUEST_SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

// HasGoogleOAuth returns true if Google OAuth is configured.
func (c *Config) HasGoogleOAuth() bool {
	return c.GoogleClientID != ""
}

// HasEmergentOAuth returns true if the Emergent provider is configured.
func (c *Config) HasEmergentOAuth() bool {
	return c.EmergentSessionDataURL != ""
}

// HasSMTP returns true if outgoing email is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
