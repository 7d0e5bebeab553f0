package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/projectguard/internal/ratelimit"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	Vault     VaultConfig
	Notify    NotifyConfig
	Timing    TimingConfig
	App       AppConfig
}

type ServerConfig struct {
	Port           string
	Environment    string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL   string
	Debug bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Backend       string
	Policies      ratelimit.Policies
	Reaper        ratelimit.ReaperConfig
	ReaperEnabled bool // run the reaper on its schedule inside the server
}

type AuthConfig struct {
	JWTSecret      string
	JWTExpiryHours int
}

type VaultConfig struct {
	MasterKey string
}

type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type TimingConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

type AppConfig struct {
	LogLevel string
	Version  string
}

// fileConfig is the optional JSON document pointed to by CONFIG_PATH
type fileConfig struct {
	RateLimits map[string]filePolicy `json:"rate_limits"`
	Reaper     *fileReaper           `json:"reaper"`
}

type filePolicy struct {
	MaxRequests int    `json:"max_requests"`
	Window      string `json:"window"`
	Scope       string `json:"scope"`
}

type fileReaper struct {
	Horizon  string `json:"horizon"`
	Schedule string `json:"schedule"`
	Timeout  string `json:"timeout"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("APP_ENV", "development"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			URL:   getEnv("DATABASE_URL", ""),
			Debug: getEnvAsBool("DATABASE_DEBUG", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Backend:       getEnv("RATE_LIMIT_BACKEND", ratelimit.BackendPostgres),
			Policies:      ratelimit.DefaultPolicies(),
			ReaperEnabled: getEnvAsBool("REAPER_ENABLED", true),
			Reaper: ratelimit.ReaperConfig{
				Horizon:  ratelimit.DefaultReaperHorizon,
				Schedule: ratelimit.DefaultReaperSchedule,
				Timeout:  time.Minute,
			},
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24),
		},
		Vault: VaultConfig{
			MasterKey: getEnv("CREDENTIAL_MASTER_KEY", ""),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Timeout:    time.Duration(getEnvAsInt("NOTIFY_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Timing: TimingConfig{
			MinDelay: time.Duration(getEnvAsInt("TIMING_DELAY_MIN_MS", 0)) * time.Millisecond,
			MaxDelay: time.Duration(getEnvAsInt("TIMING_DELAY_MAX_MS", 100)) * time.Millisecond,
		},
		App: AppConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
			Version:  getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.applyFile(getEnv("CONFIG_PATH", "config.json")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile overlays policies and reaper settings from the JSON file. A missing file is not an error.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return c.applyJSON(data)
}

func (c *Config) applyJSON(data []byte) error {
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	for endpoint, fp := range fc.RateLimits {
		window, err := time.ParseDuration(fp.Window)
		if err != nil {
			return fmt.Errorf("rate_limits.%s.window: %w", endpoint, err)
		}

		scope := ratelimit.Scope(fp.Scope)
		if scope == "" {
			scope = ratelimit.ScopeUserProject
		}

		c.RateLimit.Policies[endpoint] = ratelimit.Policy{
			MaxRequests: fp.MaxRequests,
			Window:      window,
			Scope:       scope,
		}
	}

	if fc.Reaper != nil {
		if fc.Reaper.Horizon != "" {
			horizon, err := time.ParseDuration(fc.Reaper.Horizon)
			if err != nil {
				return fmt.Errorf("reaper.horizon: %w", err)
			}
			c.RateLimit.Reaper.Horizon = horizon
		}
		if fc.Reaper.Timeout != "" {
			timeout, err := time.ParseDuration(fc.Reaper.Timeout)
			if err != nil {
				return fmt.Errorf("reaper.timeout: %w", err)
			}
			c.RateLimit.Reaper.Timeout = timeout
		}
		if fc.Reaper.Schedule != "" {
			c.RateLimit.Reaper.Schedule = fc.Reaper.Schedule
		}
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IsProduction() && c.Vault.MasterKey == "" {
		return fmt.Errorf("CREDENTIAL_MASTER_KEY is required in production")
	}

	switch c.RateLimit.Backend {
	case ratelimit.BackendPostgres, ratelimit.BackendRedis, ratelimit.BackendMemory:
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of postgres, redis, memory; got %q", c.RateLimit.Backend)
	}

	if err := c.RateLimit.Policies.Validate(); err != nil {
		return err
	}

	// Windows younger than the horizon must never be reaped
	if longest := c.RateLimit.Policies.LongestWindow(); c.RateLimit.Reaper.Horizon <= longest {
		return fmt.Errorf("reaper horizon %s must exceed the longest rate limit window %s",
			c.RateLimit.Reaper.Horizon, longest)
	}

	if c.Timing.MinDelay < 0 || c.Timing.MaxDelay < c.Timing.MinDelay {
		return fmt.Errorf("TIMING_DELAY_MIN_MS and TIMING_DELAY_MAX_MS must satisfy 0 <= min <= max")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
