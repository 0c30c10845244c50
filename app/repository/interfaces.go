package repository

import (
	"context"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// ActivityLogRepository defines the append-only audit log operations
type ActivityLogRepository interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.ActivityLog, error)
	CountByAction(ctx context.Context, action string) (int64, error)
}

// BusinessRepository defines the business lookups used by the billing API
type BusinessRepository interface {
	Create(ctx context.Context, business *models.Business) error
	GetByID(ctx context.Context, id uint) (*models.Business, error)
	List(ctx context.Context, offset, limit int) ([]models.Business, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	ActivityLog ActivityLogRepository
	Business    BusinessRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ActivityLog: NewActivityLogRepository(db),
		Business:    NewBusinessRepository(db),
	}
}
