package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/projectguard/internal/config"
	"github.com/aman-churiwal/projectguard/internal/crypto"
	"github.com/aman-churiwal/projectguard/internal/logging"
	"github.com/aman-churiwal/projectguard/internal/metrics"
	"github.com/aman-churiwal/projectguard/internal/notify"
	"github.com/aman-churiwal/projectguard/internal/ratelimit"
	"github.com/aman-churiwal/projectguard/internal/repository"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/aman-churiwal/projectguard/internal/server"
	"github.com/aman-churiwal/projectguard/internal/service"
	"github.com/aman-churiwal/projectguard/internal/storage"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.App.LogLevel)

	postgres, err := storage.NewPostgres(cfg.Database.URL, cfg.Database.Debug)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer postgres.Close()

	if err := postgres.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("connected to database")

	var redis *storage.RedisClient
	if cfg.RateLimit.Backend == ratelimit.BackendRedis {
		redis, err = storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
		logger.Info("connected to redis")
	}

	m, err := metrics.New(otel.GetMeterProvider())
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	masterKey, err := crypto.LoadMasterKey(cfg.Vault.MasterKey, cfg.Server.Environment, logger)
	if err != nil {
		log.Fatalf("Failed to load credential master key: %v", err)
	}

	store, err := ratelimit.NewStore(cfg.RateLimit.Backend, postgres, redis, ratelimit.RedisStoreConfig{
		WindowTTL: cfg.RateLimit.Reaper.Horizon,
	})
	if err != nil {
		log.Fatalf("Failed to create rate limit store: %v", err)
	}

	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Policies, logger, ratelimit.WithMetrics(m))
	reaper := ratelimit.NewReaper(store, cfg.RateLimit.Reaper, logger, m)
	if cfg.RateLimit.ReaperEnabled {
		if err := reaper.Start(); err != nil {
			log.Fatalf("Failed to start rate limit reaper: %v", err)
		}
	}

	authService := service.NewAuthService(repository.NewUserRepository(postgres), cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
	auditService := service.NewAuditService(repository.NewAuditRepository(postgres), logger, m)
	vaultService := service.NewVaultService(repository.NewCredentialRepository(postgres), masterKey, authService, logger, m)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout, vaultService, logger)
	}

	membershipService := service.NewMembershipService(
		repository.NewMemberRepository(postgres),
		repository.NewUserRepository(postgres),
		auditService,
		notifier,
		logger,
	)

	checks := map[string]server.Pinger{"database": postgres}
	if redis != nil {
		checks["redis"] = redis
	}

	srv := server.New(cfg, server.Deps{
		Auth:       authService,
		Membership: membershipService,
		Audit:      auditService,
		Vault:      vaultService,
		Limiter:    limiter,
		Delayer:    security.NewDelayer(cfg.Timing.MinDelay, cfg.Timing.MaxDelay),
		Logger:     logger,
		Checks:     checks,
	})

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	reaper.Stop(ctx)

	logger.Info("server exited")
}
