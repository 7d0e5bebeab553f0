package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
)

// ErrLockTimeout is returned when the window lock could not be acquired in time
var ErrLockTimeout = errors.New("rate limit window lock timeout")

// Key identifies one rate limit counter
type Key struct {
	UserID    string
	Endpoint  string
	ProjectID string // empty for per-user policies
}

// Store persists rate limit windows.
type Store interface {
	// Atomic runs fn while holding an exclusive lock on the window for key.
	// Locks are scoped to a single key; unrelated keys proceed concurrently.
	Atomic(ctx context.Context, key Key, fn func(tx Tx) error) error

	// DeleteBefore removes windows that started before cutoff and returns the count.
	// It does not take window locks.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tx is the view of a single locked window inside Store.Atomic
type Tx interface {
	// Returns the current window, or nil if none exists
	Get(ctx context.Context) (*models.RateLimitWindow, error)

	// Replaces any existing window with a fresh one counting a single request
	Reset(ctx context.Context, now time.Time) error

	// Increments the request count in storage and returns the new count
	Increment(ctx context.Context) (int, error)
}
