package models

import "time"

// ActorSystem is the actor id used for automated actions.
const ActorSystem = "SYSTEM"

const (
	ActionPlanExpired               = "PLAN_EXPIRED"
	ActionPlanExpirationCheckFailed = "PLAN_EXPIRATION_CHECK_FAILED"
	ActionPlanChanged               = "PLAN_CHANGED"
	ActionHTTPUnhandledError        = "HTTP_UNHANDLED_ERROR"
)

// ActivityLog is an append-only audit record.
type ActivityLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    string    `gorm:"type:varchar(64);not null;index" json:"actor_id"`
	Action     string    `gorm:"type:varchar(64);not null;index" json:"action"`
	EntityType string    `gorm:"type:varchar(64);not null;default:'';index:idx_activity_logs_entity,priority:1" json:"entity_type"`
	EntityID   string    `gorm:"type:varchar(64);not null;default:'';index:idx_activity_logs_entity,priority:2" json:"entity_id"`
	Details    string    `gorm:"type:text" json:"details"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
