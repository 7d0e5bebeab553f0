package repository

import (
	"context"
	"errors"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/storage"
	"gorm.io/gorm"
)

type MemberRepository struct {
	db *storage.Postgres
}

func NewMemberRepository(db *storage.Postgres) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *models.ProjectMember) error {
	return r.db.DB.WithContext(ctx).Create(member).Error
}

// Retrieves the membership of a user in a project, nil when absent
func (r *MemberRepository) Find(ctx context.Context, projectID, userID string) (*models.ProjectMember, error) {
	var member models.ProjectMember
	err := r.db.DB.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &member, err
}

func (r *MemberRepository) ListByProject(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	var members []models.ProjectMember
	err := r.db.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error

	return members, err
}

func (r *MemberRepository) UpdateRole(ctx context.Context, projectID, userID, role string) error {
	result := r.db.DB.WithContext(ctx).
		Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Update("role", role)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MemberRepository) Delete(ctx context.Context, projectID, userID string) error {
	result := r.db.DB.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
