package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")
	unsetEnvWithCleanup(t, "FAILURE_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "FAILURE_IDEMPOTENCY_TTL_MINUTES")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8084" {
		t.Fatalf("expected default ServerPort 8084, got %q", cfg.ServerPort)
	}
	if cfg.RedisRateLimitPrefix != "pactify:rate_limit" {
		t.Fatalf("expected default RedisRateLimitPrefix, got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.FailureRateLimitPerMinute != 6 {
		t.Fatalf("expected default FailureRateLimitPerMinute 6, got %d", cfg.FailureRateLimitPerMinute)
	}
	if cfg.FailureIdempotencyTTLMin != 1440 {
		t.Fatalf("expected default FailureIdempotencyTTLMin 1440, got %d", cfg.FailureIdempotencyTTLMin)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8084")
	setEnvWithCleanup(t, "PORT", "9001")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9001" {
		t.Fatalf("expected PORT to override ServerPort, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_UsesClerkJWKSAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "AUTH_JWKS_URL")
	setEnvWithCleanup(t, "CLERK_JWKS_URL", "https://auth.example.com/.well-known/jwks.json")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AuthJWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Fatalf("expected AuthJWKSURL from alias env var, got %q", cfg.AuthJWKSURL)
	}
}

func TestLoadConfig_AuthJWKSURLTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "AUTH_JWKS_URL", "https://primary.example.com/jwks.json")
	setEnvWithCleanup(t, "CLERK_JWKS_URL", "https://alias.example.com/jwks.json")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AuthJWKSURL != "https://primary.example.com/jwks.json" {
		t.Fatalf("expected AuthJWKSURL to prioritize AUTH_JWKS_URL, got %q", cfg.AuthJWKSURL)
	}
}

func TestLoadConfig_ClampsNonPositiveLimits(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "FAILURE_RATE_LIMIT_PER_MINUTE", "-3")
	setEnvWithCleanup(t, "FAILURE_IDEMPOTENCY_TTL_MINUTES", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.FailureRateLimitPerMinute != 6 {
		t.Fatalf("expected non-positive rate limit to fall back to 6, got %d", cfg.FailureRateLimitPerMinute)
	}
	if cfg.FailureIdempotencyTTLMin != 1440 {
		t.Fatalf("expected non-positive idempotency TTL to fall back to 1440, got %d", cfg.FailureIdempotencyTTLMin)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
