package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore keeps windows in the rate_limit_windows table and serializes
// access to one window with a row lock (SELECT ... FOR UPDATE).
type PostgresStore struct {
	db *storage.Postgres
}

func NewPostgresStore(db *storage.Postgres) *PostgresStore {
	return &PostgresStore{db: db}
}

const materializeWindowSQL = `INSERT INTO rate_limit_windows (user_id, endpoint, project_id, request_count, window_start)
VALUES (?, ?, ?, 0, ?)
ON CONFLICT (user_id, endpoint, project_id) DO NOTHING`

const incrementWindowSQL = `UPDATE rate_limit_windows SET request_count = request_count + 1
WHERE user_id = ? AND endpoint = ? AND project_id = ?
RETURNING request_count`

func (s *PostgresStore) Atomic(ctx context.Context, key Key, fn func(tx Tx) error) error {
	return s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row must exist before it can be locked; a zero count marks a placeholder
		if err := tx.Exec(materializeWindowSQL, key.UserID, key.Endpoint, key.ProjectID, time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("failed to materialize window: %w", err)
		}

		return fn(&postgresTx{tx: tx, key: key})
	})
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.DB.WithContext(ctx).
		Where("window_start < ?", cutoff).
		Delete(&models.RateLimitWindow{})

	return result.RowsAffected, result.Error
}

type postgresTx struct {
	tx  *gorm.DB
	key Key
}

func (t *postgresTx) scope(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ? AND endpoint = ? AND project_id = ?", t.key.UserID, t.key.Endpoint, t.key.ProjectID)
}

func (t *postgresTx) Get(ctx context.Context) (*models.RateLimitWindow, error) {
	var window models.RateLimitWindow
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(t.scope).
		Take(&window).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock window: %w", err)
	}

	if window.RequestCount == 0 {
		return nil, nil
	}

	return &window, nil
}

// The row is overwritten in place so requests queued on the row lock see the new window
func (t *postgresTx) Reset(ctx context.Context, now time.Time) error {
	err := t.tx.WithContext(ctx).
		Model(&models.RateLimitWindow{}).
		Scopes(t.scope).
		Updates(map[string]any{
			"request_count": 1,
			"window_start":  now.UTC(),
		}).Error

	if err != nil {
		return fmt.Errorf("failed to reset window: %w", err)
	}
	return nil
}

func (t *postgresTx) Increment(ctx context.Context) (int, error) {
	var count int
	err := t.tx.WithContext(ctx).
		Raw(incrementWindowSQL, t.key.UserID, t.key.Endpoint, t.key.ProjectID).
		Scan(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to increment window: %w", err)
	}
	return count, nil
}
