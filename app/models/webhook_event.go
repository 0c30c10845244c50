package models

import "time"

// WebhookEvent stores provider webhook payloads keyed by the provider request id
// so redeliveries can be recognized and skipped.
type WebhookEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RequestID   string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_request_id" json:"request_id"`
	EventType   string     `gorm:"type:varchar(100);not null;default:'';index" json:"event_type"`
	ExternalID  *string    `gorm:"type:varchar(191);default:null" json:"external_id,omitempty"`
	Payload     string     `gorm:"type:longtext;not null" json:"payload"`
	Processed   bool       `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time `gorm:"type:datetime;default:null" json:"processed_at,omitempty"`
	Note        string     `gorm:"type:varchar(255);not null;default:''" json:"note"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
