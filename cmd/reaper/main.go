// Command reaper runs a single rate limit window cleanup and exits, for
// deployments that set REAPER_ENABLED=false and schedule cleanup externally.
package main

import (
	"context"
	"log"
	"os"

	"github.com/aman-churiwal/projectguard/internal/config"
	"github.com/aman-churiwal/projectguard/internal/logging"
	"github.com/aman-churiwal/projectguard/internal/metrics"
	"github.com/aman-churiwal/projectguard/internal/ratelimit"
	"github.com/aman-churiwal/projectguard/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.App.LogLevel)

	var (
		postgres *storage.Postgres
		redis    *storage.RedisClient
	)

	switch cfg.RateLimit.Backend {
	case ratelimit.BackendPostgres:
		postgres, err = storage.NewPostgres(cfg.Database.URL, cfg.Database.Debug)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer postgres.Close()
	case ratelimit.BackendRedis:
		redis, err = storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
	default:
		log.Fatalf("Nothing to reap for rate limit backend %q", cfg.RateLimit.Backend)
	}

	store, err := ratelimit.NewStore(cfg.RateLimit.Backend, postgres, redis, ratelimit.RedisStoreConfig{
		WindowTTL: cfg.RateLimit.Reaper.Horizon,
	})
	if err != nil {
		log.Fatalf("Failed to create rate limit store: %v", err)
	}

	reaper := ratelimit.NewReaper(store, cfg.RateLimit.Reaper, logger, metrics.Noop())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RateLimit.Reaper.Timeout)
	defer cancel()

	deleted, err := reaper.Cleanup(ctx)
	if err != nil {
		logger.Error("cleanup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("cleanup finished", "deleted", deleted)
}
