package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/reviewrelay/reviewrelay/internal/config"
	"github.com/reviewrelay/reviewrelay/internal/db"
	"github.com/reviewrelay/reviewrelay/internal/http/api/front"
	"github.com/reviewrelay/reviewrelay/internal/http/api/hooks"
	"github.com/reviewrelay/reviewrelay/internal/http/api/worker"
	"github.com/reviewrelay/reviewrelay/internal/jobs"
	"github.com/reviewrelay/reviewrelay/internal/plan"
	"github.com/reviewrelay/reviewrelay/internal/quota"
	"github.com/reviewrelay/reviewrelay/internal/ratelimit"
	"github.com/reviewrelay/reviewrelay/internal/usage"
	"github.com/reviewrelay/reviewrelay/internal/webhook"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds how long in-flight requests may drain on stop.
const shutdownTimeout = 10 * time.Second

// ConfigExists reports whether the config file is present on disk.
func ConfigExists(configPath string) bool {
	info, errStat := os.Stat(configPath)
	return errStat == nil && !info.IsDir()
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the admission pipeline server with database-backed
// components and serves until the context is canceled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	webhookCfg, _ := config.LoadWebhookConfig(configPath)
	workerCfg, _ := config.LoadWorkerConfig(configPath)
	rateCfg, _ := config.LoadRateLimitConfig(configPath)

	_, dayLoc, errQuotaCfg := config.LoadQuotaConfig(configPath)
	if errQuotaCfg != nil {
		return errQuotaCfg
	}

	registry := plan.NewRegistry()
	overrides, errOverrides := config.LoadPlanOverrides(configPath)
	if errOverrides != nil {
		return errOverrides
	}
	registry.Apply(planOverrides(overrides))

	ledger := usage.NewLedger(conn, dayLoc)
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig {
		return ratelimit.SettingsConfig{
			RedisEnabled:  rateCfg.RedisEnabled,
			RedisAddr:     rateCfg.RedisAddr,
			RedisPassword: rateCfg.RedisPassword,
			RedisDB:       rateCfg.RedisDB,
			RedisPrefix:   rateCfg.RedisPrefix,
		}
	}, nil, nil)
	checker := quota.NewChecker(conn, registry, ledger, limiter)
	jobStore := jobs.NewStore(conn)
	intake := webhook.NewIntake(webhookCfg.GitLabSecret, jobStore)

	if webhookCfg.GitLabSecret == "" {
		log.Warn("webhook secret not configured, all deliveries will be rejected")
	}
	if workerCfg.Token == "" {
		log.Warn("worker token not configured, worker API is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	hooks.RegisterHookRoutes(engine, intake)
	front.RegisterFrontRoutes(engine, conn, jwtCfg, registry, checker, ledger, jobStore)
	worker.RegisterWorkerRoutes(engine, workerCfg, jobStore)

	if defaultPort <= 0 {
		defaultPort = 8318
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", defaultPort),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting server on %s with config=%s", server.Addr, cfg.ConfigPath)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// planOverrides converts config plan overrides into registry limits.
func planOverrides(cfg map[string]config.PlanLimitsConfig) map[string]plan.Limits {
	if len(cfg) == 0 {
		return nil
	}
	out := make(map[string]plan.Limits, len(cfg))
	for name, limits := range cfg {
		out[name] = plan.Limits{
			DailyRequests: limits.DailyRequests,
			RPM:           limits.RPM,
			MaxTokens:     limits.MaxTokens,
		}
	}
	return out
}
