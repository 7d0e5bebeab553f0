package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/storage"
	"gorm.io/gorm"
)

type CredentialRepository struct {
	db *storage.Postgres
}

func NewCredentialRepository(db *storage.Postgres) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(ctx context.Context, credential *models.Credential) error {
	return r.db.DB.WithContext(ctx).Create(credential).Error
}

// Retrieves a credential owned by userID, nil when absent
func (r *CredentialRepository) FindByID(ctx context.Context, userID, id string) (*models.Credential, error) {
	return r.first(ctx, r.db.DB.Where("user_id = ? AND id = ?", userID, id))
}

func (r *CredentialRepository) FindByName(ctx context.Context, userID, name string) (*models.Credential, error) {
	return r.first(ctx, r.db.DB.Where("user_id = ? AND name = ?", userID, name))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Matches the service against the category or the website, most recently updated first.
// An empty service matches nothing.
func (r *CredentialRepository) FindByService(ctx context.Context, userID, service string) (*models.Credential, error) {
	service = strings.ToLower(strings.TrimSpace(service))
	if service == "" {
		return nil, nil
	}

	return r.first(ctx, r.db.DB.
		Where("user_id = ?", userID).
		Where(`LOWER(category) = ? OR LOWER(website) LIKE ? ESCAPE '\'`, service, "%"+likeEscaper.Replace(service)+"%").
		Order("updated_at DESC"))
}

func (r *CredentialRepository) first(ctx context.Context, query *gorm.DB) (*models.Credential, error) {
	var credential models.Credential
	err := query.WithContext(ctx).First(&credential).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &credential, err
}

func (r *CredentialRepository) ListByUser(ctx context.Context, userID string) ([]models.Credential, error) {
	var credentials []models.Credential
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&credentials).Error

	return credentials, err
}

func (r *CredentialRepository) Update(ctx context.Context, userID, id string, updates map[string]any) error {
	result := r.db.DB.WithContext(ctx).
		Model(&models.Credential{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CredentialRepository) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ?", id).
		UpdateColumn("last_accessed_at", at).Error
}

func (r *CredentialRepository) Delete(ctx context.Context, userID, id string) error {
	result := r.db.DB.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&models.Credential{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
