package models

import "time"

// CurrentPlan records which plan a business holds and until when.
// A nil ExpiresAt means the assignment does not expire.
type CurrentPlan struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	BusinessID   uint       `gorm:"not null;uniqueIndex:ux_current_plans_business" json:"business_id"`
	PlanID       uint       `gorm:"not null;index" json:"plan_id"`
	Plan         *Plan      `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Business     *Business  `gorm:"foreignKey:BusinessID" json:"-"`
	IsActive     bool       `gorm:"not null;default:false;index:idx_current_plans_active_expiry,priority:1" json:"is_active"`
	ExpiresAt    *time.Time `gorm:"type:datetime;default:null;index:idx_current_plans_active_expiry,priority:2" json:"expires_at,omitempty"`
	ProductsUsed *int       `gorm:"not null;default:0" json:"products_used"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Expired reports whether the assignment lapsed before now.
func (cp *CurrentPlan) Expired(now time.Time) bool {
	return cp.ExpiresAt != nil && cp.ExpiresAt.Before(now)
}
