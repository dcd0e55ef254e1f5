package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loaders.
const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvWebhookSecret = "GITLAB_WEBHOOK_TOKEN"
	EnvWorkerToken   = "WORKER_TOKEN"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// WebhookConfig holds webhook intake settings.
type WebhookConfig struct {
	GitLabSecret string `yaml:"gitlab-secret"`
}

// LoadWebhookConfig loads webhook settings from the YAML config file.
func LoadWebhookConfig(configPath string) (WebhookConfig, error) {
	// fileConfig maps the YAML fields needed for webhook settings.
	type fileConfig struct {
		Webhook WebhookConfig `yaml:"webhook"`
	}

	var result WebhookConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Webhook
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvWebhookSecret)); secret != "" {
		result.GitLabSecret = secret
	}
	result.GitLabSecret = strings.TrimSpace(result.GitLabSecret)
	return result, nil
}

// WorkerConfig holds settings for the review worker API.
type WorkerConfig struct {
	Token string `yaml:"token"`
}

// LoadWorkerConfig loads worker API settings from the YAML config file.
func LoadWorkerConfig(configPath string) (WorkerConfig, error) {
	// fileConfig maps the YAML fields needed for worker settings.
	type fileConfig struct {
		Worker WorkerConfig `yaml:"worker"`
	}

	var result WorkerConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Worker
		}
	}

	if token := strings.TrimSpace(os.Getenv(EnvWorkerToken)); token != "" {
		result.Token = token
	}
	result.Token = strings.TrimSpace(result.Token)
	return result, nil
}

// QuotaConfig holds admission control settings.
type QuotaConfig struct {
	// DayBoundary names the time zone whose midnight starts a usage day.
	DayBoundary string `yaml:"day-boundary"`
}

// LoadQuotaConfig loads quota settings and resolves the day boundary location.
// The boundary defaults to UTC so deployments in different regions agree on
// when a usage day starts.
func LoadQuotaConfig(configPath string) (QuotaConfig, *time.Location, error) {
	// fileConfig maps the YAML fields needed for quota settings.
	type fileConfig struct {
		Quota QuotaConfig `yaml:"quota"`
	}

	var result QuotaConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Quota
		}
	}

	name := strings.TrimSpace(result.DayBoundary)
	if name == "" {
		return result, time.UTC, nil
	}
	loc, errLoad := time.LoadLocation(name)
	if errLoad != nil {
		return result, nil, fmt.Errorf("quota day-boundary %q: %w", name, errLoad)
	}
	return result, loc, nil
}

// RateLimitConfig holds rate limiter backend settings.
type RateLimitConfig struct {
	RedisEnabled  bool   `yaml:"redis-enabled"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	RedisPrefix   string `yaml:"redis-prefix"`
}

// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
const DefaultRateLimitRedisPrefix = "rr:rl"

// LoadRateLimitConfig loads rate limiter settings from the YAML config file.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	// fileConfig maps the YAML fields needed for rate limit settings.
	type fileConfig struct {
		RateLimit RateLimitConfig `yaml:"rate-limit"`
	}

	var result RateLimitConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.RateLimit
		}
	}

	result.RedisAddr = strings.TrimSpace(result.RedisAddr)
	result.RedisPassword = strings.TrimSpace(result.RedisPassword)
	result.RedisPrefix = strings.TrimSpace(result.RedisPrefix)
	if result.RedisPrefix == "" {
		result.RedisPrefix = DefaultRateLimitRedisPrefix
	}
	if result.RedisDB < 0 {
		result.RedisDB = 0
	}
	return result, nil
}

// PlanLimitsConfig holds per-plan limit overrides from the config file.
type PlanLimitsConfig struct {
	DailyRequests int `yaml:"daily-requests"`
	RPM           int `yaml:"rpm"`
	MaxTokens     int `yaml:"max-tokens"`
}

// LoadPlanOverrides loads plan limit overrides from the YAML config file.
// Absent or unreadable config yields no overrides.
func LoadPlanOverrides(configPath string) (map[string]PlanLimitsConfig, error) {
	// fileConfig maps the YAML fields needed for plan overrides.
	type fileConfig struct {
		Plans map[string]PlanLimitsConfig `yaml:"plans"`
	}

	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		return nil, nil
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg.Plans, nil
}
