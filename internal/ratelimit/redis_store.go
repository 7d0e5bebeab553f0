package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisWindowPrefix = "ratelimit:window:"
	redisLockPrefix   = "ratelimit:lock:"

	fieldCount = "count"
	fieldStart = "start" // unix milliseconds
)

// Deletes the lock only if it is still held by the caller's token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Deletes the window only if it still started before the cutoff, so a window
// renewed between the scan and the delete survives
var deleteStaleWindowScript = redis.NewScript(`
local start = redis.call("HGET", KEYS[1], "start")
if start and tonumber(start) < tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each window in a hash and serializes access to one window
// with a per-key lock (SET NX PX).
type RedisStore struct {
	redis      *storage.RedisClient
	windowTTL  time.Duration
	lockTTL    time.Duration
	lockWait   time.Duration
	retryDelay time.Duration
}

type RedisStoreConfig struct {
	WindowTTL  time.Duration // Default: 24h, should match the reaper horizon
	LockTTL    time.Duration // Default: 5s
	LockWait   time.Duration // Default: 2s
	RetryDelay time.Duration // Default: 5ms
}

func NewRedisStore(redis *storage.RedisClient, cfg RedisStoreConfig) *RedisStore {
	if cfg.WindowTTL <= 0 {
		cfg.WindowTTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Millisecond
	}

	return &RedisStore{
		redis:      redis,
		windowTTL:  cfg.WindowTTL,
		lockTTL:    cfg.LockTTL,
		lockWait:   cfg.LockWait,
		retryDelay: cfg.RetryDelay,
	}
}

func redisSuffix(key Key) string {
	return fmt.Sprintf("%s|%s|%s", key.UserID, key.Endpoint, key.ProjectID)
}

func (s *RedisStore) Atomic(ctx context.Context, key Key, fn func(tx Tx) error) error {
	lockKey := redisLockPrefix + redisSuffix(key)
	token := uuid.NewString()

	if err := s.acquire(ctx, lockKey, token); err != nil {
		return err
	}
	defer func() {
		// Release even if the request context is already done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		releaseLockScript.Run(releaseCtx, s.redis.Client, []string{lockKey}, token)
	}()

	return fn(&redisTx{
		client:    s.redis.Client,
		key:       key,
		windowKey: redisWindowPrefix + redisSuffix(key),
		ttl:       s.windowTTL,
	})
}

func (s *RedisStore) acquire(ctx context.Context, lockKey, token string) error {
	deadline := time.Now().Add(s.lockWait)

	for {
		ok, err := s.redis.Client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire window lock: %w", err)
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *RedisStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	cutoffMs := cutoff.UnixMilli()

	iter := s.redis.Client.Scan(ctx, 0, redisWindowPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		windowKey := iter.Val()

		n, err := s.deleteIfStale(ctx, windowKey, cutoffMs)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan windows: %w", err)
	}

	return deleted, nil
}

func (s *RedisStore) deleteIfStale(ctx context.Context, windowKey string, cutoffMs int64) (int64, error) {
	n, err := deleteStaleWindowScript.Run(ctx, s.redis.Client, []string{windowKey}, cutoffMs).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to delete window %s: %w", windowKey, err)
	}
	return n, nil
}

type redisTx struct {
	client    *redis.Client
	key       Key
	windowKey string
	ttl       time.Duration
}

func (t *redisTx) Get(ctx context.Context) (*models.RateLimitWindow, error) {
	fields, err := t.client.HGetAll(ctx, t.windowKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read window: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	count, err := strconv.Atoi(fields[fieldCount])
	if err != nil {
		return nil, fmt.Errorf("invalid window count: %w", err)
	}
	startMs, err := strconv.ParseInt(fields[fieldStart], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}

	return &models.RateLimitWindow{
		UserID:       t.key.UserID,
		Endpoint:     t.key.Endpoint,
		ProjectID:    t.key.ProjectID,
		RequestCount: count,
		WindowStart:  time.UnixMilli(startMs),
	}, nil
}

func (t *redisTx) Reset(ctx context.Context, now time.Time) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, t.windowKey)
		pipe.HSet(ctx, t.windowKey, fieldCount, 1, fieldStart, now.UnixMilli())
		pipe.Expire(ctx, t.windowKey, t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset window: %w", err)
	}
	return nil
}

func (t *redisTx) Increment(ctx context.Context) (int, error) {
	count, err := t.client.HIncrBy(ctx, t.windowKey, fieldCount, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment window: %w", err)
	}
	return int(count), nil
}
