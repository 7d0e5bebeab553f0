package models

import "time"

// Per-(user, endpoint, project) request counter for the sliding window limiter
type RateLimitWindow struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_rate_limit_windows_tuple" json:"user_id"`
	Endpoint     string    `gorm:"not null;uniqueIndex:idx_rate_limit_windows_tuple" json:"endpoint"`
	ProjectID    string    `gorm:"not null;default:'';uniqueIndex:idx_rate_limit_windows_tuple" json:"project_id"` // '' for per-user policies
	RequestCount int       `gorm:"not null;default:0" json:"request_count"`
	WindowStart  time.Time `gorm:"not null;index" json:"window_start"`
}

func (RateLimitWindow) TableName() string {
	return "rate_limit_windows"
}
