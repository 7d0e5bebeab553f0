package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type ProjectMember struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProjectID string    `gorm:"not null;uniqueIndex:idx_project_members_project_user" json:"project_id"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_project_members_project_user" json:"user_id"`
	Email     string    `gorm:"not null" json:"email"`
	Role      string    `gorm:"not null" json:"role"`
	InvitedBy string    `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *ProjectMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (ProjectMember) TableName() string {
	return "project_members"
}

// Reports whether the role may manage other members of the project
func CanManageMembers(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}

// Reports whether the role can be granted through invite or role change
func IsAssignableRole(role string) bool {
	return role == RoleAdmin || role == RoleEditor || role == RoleViewer
}
