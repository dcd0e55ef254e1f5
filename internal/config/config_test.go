package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadDatabaseDSNFromFlatKey(t *testing.T) {
	path := writeConfig(t, "database-dsn: \"sqlite::memory:\"\n")

	dsn, errLoad := LoadDatabaseDSN(path)
	if errLoad != nil {
		t.Fatalf("load dsn: %v", errLoad)
	}
	if dsn != "sqlite::memory:" {
		t.Fatalf("expected flat dsn, got %q", dsn)
	}
}

func TestLoadDatabaseDSNFromNestedKey(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: postgres://u:p@h/db\n")

	dsn, errLoad := LoadDatabaseDSN(path)
	if errLoad != nil {
		t.Fatalf("load dsn: %v", errLoad)
	}
	if dsn != "postgres://u:p@h/db" {
		t.Fatalf("expected nested dsn, got %q", dsn)
	}
}

func TestLoadDatabaseDSNEnvOverride(t *testing.T) {
	t.Setenv(EnvDBConnection, "postgres://env/db")
	path := writeConfig(t, "database-dsn: \"sqlite::memory:\"\n")

	dsn, errLoad := LoadDatabaseDSN(path)
	if errLoad != nil {
		t.Fatalf("load dsn: %v", errLoad)
	}
	if dsn != "postgres://env/db" {
		t.Fatalf("expected env dsn, got %q", dsn)
	}
}

func TestLoadDatabaseDSNMissing(t *testing.T) {
	path := writeConfig(t, "jwt:\n  secret: x\n")

	_, errLoad := LoadDatabaseDSN(path)
	if !errors.Is(errLoad, ErrMissingDatabaseDSN) {
		t.Fatalf("expected missing dsn error, got %v", errLoad)
	}
}

func TestLoadJWTConfigDefaults(t *testing.T) {
	cfg, errLoad := LoadJWTConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load jwt: %v", errLoad)
	}
	if cfg.Expiry != 30*24*time.Hour {
		t.Fatalf("expected default expiry, got %v", cfg.Expiry)
	}
}

func TestLoadJWTConfigEnvOverride(t *testing.T) {
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvJWTExpiry, "2h")
	path := writeConfig(t, "jwt:\n  secret: file-secret\n  expiry: 1h\n")

	cfg, errLoad := LoadJWTConfig(path)
	if errLoad != nil {
		t.Fatalf("load jwt: %v", errLoad)
	}
	if cfg.Secret != "env-secret" {
		t.Fatalf("expected env secret, got %q", cfg.Secret)
	}
	if cfg.Expiry != 2*time.Hour {
		t.Fatalf("expected env expiry, got %v", cfg.Expiry)
	}
}

func TestLoadWebhookConfig(t *testing.T) {
	path := writeConfig(t, "webhook:\n  gitlab-secret: hook-token\n")

	cfg, errLoad := LoadWebhookConfig(path)
	if errLoad != nil {
		t.Fatalf("load webhook: %v", errLoad)
	}
	if cfg.GitLabSecret != "hook-token" {
		t.Fatalf("expected file secret, got %q", cfg.GitLabSecret)
	}
}

func TestLoadWebhookConfigEnvOverride(t *testing.T) {
	t.Setenv(EnvWebhookSecret, "env-token")
	path := writeConfig(t, "webhook:\n  gitlab-secret: file-token\n")

	cfg, errLoad := LoadWebhookConfig(path)
	if errLoad != nil {
		t.Fatalf("load webhook: %v", errLoad)
	}
	if cfg.GitLabSecret != "env-token" {
		t.Fatalf("expected env secret, got %q", cfg.GitLabSecret)
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	t.Setenv(EnvWorkerToken, "env-worker")

	cfg, errLoad := LoadWorkerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load worker: %v", errLoad)
	}
	if cfg.Token != "env-worker" {
		t.Fatalf("expected env token, got %q", cfg.Token)
	}
}

func TestLoadQuotaConfigDefaultsToUTC(t *testing.T) {
	_, loc, errLoad := LoadQuotaConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load quota: %v", errLoad)
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC boundary, got %v", loc)
	}
}

func TestLoadQuotaConfigNamedZone(t *testing.T) {
	path := writeConfig(t, "quota:\n  day-boundary: Asia/Tokyo\n")

	_, loc, errLoad := LoadQuotaConfig(path)
	if errLoad != nil {
		t.Fatalf("load quota: %v", errLoad)
	}
	if loc == nil || loc.String() != "Asia/Tokyo" {
		t.Fatalf("expected Asia/Tokyo, got %v", loc)
	}
}

func TestLoadQuotaConfigBadZone(t *testing.T) {
	path := writeConfig(t, "quota:\n  day-boundary: Not/AZone\n")

	_, _, errLoad := LoadQuotaConfig(path)
	if errLoad == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	path := writeConfig(t, "rate-limit:\n  redis-enabled: true\n  redis-addr: localhost:6379\n")

	cfg, errLoad := LoadRateLimitConfig(path)
	if errLoad != nil {
		t.Fatalf("load rate limit: %v", errLoad)
	}
	if !cfg.RedisEnabled || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.RedisPrefix != DefaultRateLimitRedisPrefix {
		t.Fatalf("expected default prefix, got %q", cfg.RedisPrefix)
	}
}

func TestLoadPlanOverrides(t *testing.T) {
	path := writeConfig(t, "plans:\n  free:\n    daily-requests: 5\n  team:\n    daily-requests: 100\n    rpm: 30\n    max-tokens: 4000\n")

	overrides, errLoad := LoadPlanOverrides(path)
	if errLoad != nil {
		t.Fatalf("load overrides: %v", errLoad)
	}
	if overrides["free"].DailyRequests != 5 {
		t.Fatalf("expected free override, got %+v", overrides["free"])
	}
	if overrides["team"].RPM != 30 || overrides["team"].MaxTokens != 4000 {
		t.Fatalf("expected team override, got %+v", overrides["team"])
	}
}

func TestResolveConfigPathDefault(t *testing.T) {
	resolved := ResolveConfigPath("")
	if filepath.Base(resolved) != "config.yaml" {
		t.Fatalf("expected default config.yaml, got %q", resolved)
	}
	if !filepath.IsAbs(resolved) {
		t.Fatalf("expected absolute path, got %q", resolved)
	}
}
