package ratelimit

import (
	"errors"
	"fmt"

	"github.com/aman-churiwal/projectguard/internal/storage"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// NewStore builds the window store for the configured backend
func NewStore(backend string, pg *storage.Postgres, redis *storage.RedisClient, redisCfg RedisStoreConfig) (Store, error) {
	switch backend {
	case BackendPostgres:
		if pg == nil {
			return nil, errors.New("postgres rate limit backend requires a database connection")
		}
		return NewPostgresStore(pg), nil
	case BackendRedis:
		if redis == nil {
			return nil, errors.New("redis rate limit backend requires a redis connection")
		}
		return NewRedisStore(redis, redisCfg), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", backend)
	}
}
