package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/storage"
)

// AuditFilter narrows an audit log query. ProjectID is required.
type AuditFilter struct {
	ProjectID   string
	Action      models.AuditAction
	PerformedBy string
	TargetEmail string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// AuditRepository appends and reads audit log entries. There is no update or delete.
type AuditRepository struct {
	db *storage.Postgres
}

func NewAuditRepository(db *storage.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.DB.WithContext(ctx).Create(entry).Error
}

// Retrieves entries most-recent-first
func (r *AuditRepository) Find(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error) {
	var logs []models.AuditLog

	query := r.db.DB.WithContext(ctx).
		Where("project_id = ?", filter.ProjectID)

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.PerformedBy != "" {
		query = query.Where("performed_by = ?", filter.PerformedBy)
	}
	if filter.TargetEmail != "" {
		query = query.Where("LOWER(target_user_email) = LOWER(?)", filter.TargetEmail)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at <= ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Find(&logs).Error

	return logs, err
}
