package config

import (
	"os"
	"testing"
)

func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"JWT_SECRET", "JWT_AUDIENCE", "JWT_ISSUER", "INVITE_TTL_SECONDS",
		"HOST_ROLES", "INVITE_ROLES", "LISTEN_ADDR", "ALLOWED_ORIGINS",
		"GO_ENV", "LOG_LEVEL",
	}
	orig := make(map[string]string, len(keys))
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if v := orig[k]; v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoad_DefaultsWithNoSecret(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("expected auth disabled when JWT_SECRET unset")
	}
	if cfg.ListenAddr != "0.0.0.0:8999" {
		t.Errorf("unexpected default listen addr: %s", cfg.ListenAddr)
	}
	if cfg.InviteTTLSecs != 3600 {
		t.Errorf("expected default invite ttl 3600, got %d", cfg.InviteTTLSecs)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("unexpected default allowed origins: %v", cfg.AllowedOrigins)
	}
	if cfg.GoEnv != "production" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: go_env=%s log_level=%s", cfg.GoEnv, cfg.LogLevel)
	}
}

func TestLoad_SecretEnablesAuth(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "super-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("expected auth enabled when JWT_SECRET set")
	}
}

func TestLoad_InvalidInviteTTL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("INVITE_TTL_SECONDS", "not-a-number")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid INVITE_TTL_SECONDS")
	}
}

func TestLoad_RoleCSVParsing(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("HOST_ROLES", "host, Admin ,moderator")
	os.Setenv("INVITE_ROLES", "host")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	want := []string{"host", "Admin", "moderator"}
	if len(cfg.HostRoles) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.HostRoles)
	}
	for i, r := range want {
		if cfg.HostRoles[i] != r {
			t.Errorf("role[%d] = %q, want %q", i, cfg.HostRoles[i], r)
		}
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"empty", "", "(disabled)"},
		{"short", "short", "***"},
		{"exactly 8 chars", "12345678", "***"},
		{"long secret", "this-is-a-very-long-secret-key", "this-***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactSecret(tt.secret); got != tt.expected {
				t.Errorf("redactSecret(%q) = %q, want %q", tt.secret, got, tt.expected)
			}
		})
	}
}
