package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// A user secret encrypted with the owner's derived key. The value is never stored in plaintext.
type Credential struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID         string     `gorm:"not null;uniqueIndex:idx_credentials_user_name" json:"user_id"`
	Name           string     `gorm:"not null;uniqueIndex:idx_credentials_user_name" json:"name"`
	EncryptedValue string     `gorm:"not null" json:"-"`
	IV             string     `gorm:"column:iv;not null" json:"-"`
	AuthTag        string     `gorm:"not null" json:"-"`
	Category       string     `json:"category,omitempty"`
	Website        string     `json:"website,omitempty"`
	Username       string     `json:"username,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (Credential) TableName() string {
	return "credentials"
}
