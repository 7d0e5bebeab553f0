package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/aman-churiwal/projectguard/internal/metrics"
)

// Decision is the outcome of a single rate limit check
type Decision struct {
	Metered    bool // false for unmetered endpoints and fail-open checks; no headers are emitted
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set only when not allowed
}

// Limiter applies a persisted sliding window per (user, endpoint, project)
type Limiter struct {
	store    Store
	policies Policies
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func NewLimiter(store Store, policies Policies, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		store:    store,
		policies: policies,
		logger:   logger,
		metrics:  metrics.Noop(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Returns the policy configured for endpoint
func (l *Limiter) Policy(endpoint string) (Policy, bool) {
	p, ok := l.policies[endpoint]
	return p, ok
}

// Check counts one request for the tuple and decides whether it is admitted.
// Storage failures fail open: the request is allowed and the decision is unmetered.
func (l *Limiter) Check(ctx context.Context, userID, endpoint, projectID string) Decision {
	policy, ok := l.policies[endpoint]
	if !ok {
		return Decision{Allowed: true}
	}

	key := policy.key(userID, endpoint, projectID)
	now := l.now()
	floor := now.Add(-policy.Window)

	var decision Decision
	err := l.store.Atomic(ctx, key, func(tx Tx) error {
		window, err := tx.Get(ctx)
		if err != nil {
			return err
		}

		// Expired only when strictly older than the floor
		if window == nil || window.WindowStart.Before(floor) {
			if err := tx.Reset(ctx, now); err != nil {
				return err
			}
			decision = Decision{
				Metered:   true,
				Allowed:   true,
				Limit:     policy.MaxRequests,
				Remaining: policy.MaxRequests - 1,
				ResetAt:   now.Add(policy.Window),
			}
			return nil
		}

		resetAt := window.WindowStart.Add(policy.Window)

		if window.RequestCount < policy.MaxRequests {
			count, err := tx.Increment(ctx)
			if err != nil {
				return err
			}
			decision = Decision{
				Metered:   true,
				Allowed:   true,
				Limit:     policy.MaxRequests,
				Remaining: max(policy.MaxRequests-count, 0),
				ResetAt:   resetAt,
			}
			return nil
		}

		decision = Decision{
			Metered:    true,
			Allowed:    false,
			Limit:      policy.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, now),
		}
		return nil
	})

	if err != nil {
		l.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
			"endpoint", endpoint,
			"error", err,
		)
		l.metrics.RecordFailOpen(ctx, endpoint)
		return Decision{Allowed: true}
	}

	l.metrics.RecordDecision(ctx, endpoint, decision.Allowed)
	if !decision.Allowed {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"endpoint", endpoint,
			"user_id", userID,
			"project_id", key.ProjectID,
			"retry_after", decision.RetryAfter,
		)
	}

	return decision
}

func retryAfterSeconds(resetAt, now time.Time) int {
	seconds := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
