package repository

import (
	"context"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// businessRepository implements the BusinessRepository interface
type businessRepository struct {
	db *gorm.DB
}

// NewBusinessRepository creates a new business repository instance
func NewBusinessRepository(db *gorm.DB) BusinessRepository {
	return &businessRepository{db: db}
}

// Create inserts a business. New businesses start without an active plan.
func (r *businessRepository) Create(ctx context.Context, business *models.Business) error {
	if business.Plan == "" {
		business.Plan = models.PlanFree
	}
	if business.PlanStatus == "" {
		business.PlanStatus = models.PlanStatusInactive
	}
	return r.db.WithContext(ctx).Create(business).Error
}

// GetByID retrieves a business by its ID
func (r *businessRepository) GetByID(ctx context.Context, id uint) (*models.Business, error) {
	var business models.Business
	if err := r.db.WithContext(ctx).First(&business, id).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// List retrieves businesses with pagination
func (r *businessRepository) List(ctx context.Context, offset, limit int) ([]models.Business, error) {
	var businesses []models.Business
	err := r.db.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&businesses).Error
	return businesses, err
}
