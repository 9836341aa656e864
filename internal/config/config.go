package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"log/slog"
)

// Config holds validated environment configuration for the session server.
// Unlike most deployments the JWT secret is optional: an empty secret
// disables authentication entirely and every principal is implicitly
// authorized (spec §4.1).
type Config struct {
	// Auth / invite.
	JWTSecret     string
	JWTAudience   string
	JWTIssuer     string
	InviteTTLSecs int
	HostRoles     []string
	InviteRoles   []string

	// HTTP/WS surface.
	ListenAddr     string
	AllowedOrigins []string

	GoEnv    string
	LogLevel string
}

// Load reads and validates environment configuration. Validation failures
// are aggregated into a single error rather than failing on the first one.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTAudience = os.Getenv("JWT_AUDIENCE")
	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")

	cfg.InviteTTLSecs = 3600
	if v := os.Getenv("INVITE_TTL_SECONDS"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl <= 0 {
			errs = append(errs, fmt.Sprintf("INVITE_TTL_SECONDS must be a positive integer (got %q)", v))
		} else {
			cfg.InviteTTLSecs = ttl
		}
	}

	cfg.HostRoles = splitCSV(os.Getenv("HOST_ROLES"))
	cfg.InviteRoles = splitCSV(os.Getenv("INVITE_ROLES"))

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", "0.0.0.0:8999")

	cfg.AllowedOrigins = splitCSV(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// AuthEnabled reports whether the server was configured with a signing
// secret. When false, verification is a no-op success (spec §4.1).
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"auth_enabled", cfg.AuthEnabled(),
		"listen_addr", cfg.ListenAddr,
		"invite_ttl_seconds", cfg.InviteTTLSecs,
		"host_roles", cfg.HostRoles,
		"invite_roles", cfg.InviteRoles,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
	)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return "(disabled)"
		}
		return "***"
	}
	return secret[:5] + "***"
}
