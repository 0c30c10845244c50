package models

import "time"

const (
	PlanStatusActive   = "ACTIVE"
	PlanStatusInactive = "INACTIVE"
)

// Business is owned by the marketplace. Billing only writes the mirrored
// Plan, PlanStatus and PlanExpiresAt fields.
type Business struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"type:varchar(200);not null" json:"name"`
	OwnerEmail    string     `gorm:"type:varchar(200);not null;default:''" json:"owner_email"`
	Plan          PlanType   `gorm:"type:varchar(20);not null;default:'FREE'" json:"plan"`
	PlanStatus    string     `gorm:"type:varchar(16);not null;default:'INACTIVE';index" json:"plan_status"`
	PlanExpiresAt *time.Time `gorm:"type:datetime;default:null" json:"plan_expires_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
