package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type AuditAction string

const (
	AuditActionInvite     AuditAction = "invite"
	AuditActionRoleChange AuditAction = "role_change"
	AuditActionRemove     AuditAction = "remove"
)

// AuditValue is the structured old/new value of an audited mutation, stored as jsonb
type AuditValue map[string]any

func (v AuditValue) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *AuditValue) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("unsupported audit value type %T", src)
	}

	return json.Unmarshal(data, v)
}

// Represents one immutable membership mutation. Entries are never updated or deleted.
type AuditLog struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID       string      `gorm:"not null;index:idx_audit_logs_project_created,priority:1" json:"project_id"`
	PerformedBy     string      `gorm:"not null;index" json:"performed_by"`
	TargetUserEmail string      `gorm:"not null" json:"target_user_email"`
	Action          AuditAction `gorm:"type:text;not null" json:"action"`
	OldValue        AuditValue  `gorm:"type:jsonb" json:"old_value"`
	NewValue        AuditValue  `gorm:"type:jsonb" json:"new_value"`
	IPAddress       string      `json:"ip_address"`
	UserAgent       string      `json:"user_agent"`
	CreatedAt       time.Time   `gorm:"not null;index:idx_audit_logs_project_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
