package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// activityLogRepository implements the ActivityLogRepository interface
type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository creates a new activity log repository instance
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

// Append stores a new audit entry. Entries are never updated or deleted.
func (r *activityLogRepository) Append(ctx context.Context, entry *models.ActivityLog) error {
	if entry == nil || entry.Action == "" {
		return errors.New("activity log entry requires an action")
	}
	if entry.ActorID == "" {
		entry.ActorID = models.ActorSystem
	}
	if entry.Details == "" {
		entry.Details = "{}"
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByEntity returns the newest entries for an entity first
func (r *activityLogRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.ActivityLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountByAction counts entries with the given action
func (r *activityLogRepository) CountByAction(ctx context.Context, action string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ActivityLog{}).Where("action = ?", action).Count(&n).Error
	return n, err
}
