package models

import "time"

// Trial is a time-boxed conversion of an active plan. Rows are deactivated,
// never deleted, so the table doubles as trial history.
type Trial struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BusinessID  uint      `gorm:"not null;index:idx_trials_business_active,priority:1" json:"business_id"`
	Plan        PlanType  `gorm:"type:varchar(20);not null" json:"plan"`
	ActivatedAt time.Time `gorm:"type:datetime;not null" json:"activated_at"`
	ExpiresAt   time.Time `gorm:"type:datetime;not null;index" json:"expires_at"`
	IsActive    bool      `gorm:"not null;index:idx_trials_business_active,priority:2" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
