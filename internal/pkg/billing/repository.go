package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing components.
// Lookups return gorm.ErrRecordNotFound when a row is missing.
type Repository interface {
	// WithTx runs fn inside a transaction. The Repository passed to fn is
	// bound to that transaction and must be the only one used inside it.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	FindPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error)
	ListPlans(ctx context.Context, onlyActive bool) ([]models.Plan, error)
	SavePlan(ctx context.Context, plan *models.Plan) error

	GetBusiness(ctx context.Context, id uint) (*models.Business, error)
	MirrorBusinessPlan(ctx context.Context, businessID uint, planType models.PlanType, status string, expiresAt *time.Time) error
	MarkBusinessPlanInactive(ctx context.Context, businessID uint) error

	GetCurrentPlan(ctx context.Context, businessID uint, forUpdate bool) (*models.CurrentPlan, error)
	UpsertCurrentPlan(ctx context.Context, businessID, planID uint, expiresAt *time.Time) (*models.CurrentPlan, error)
	ListExpiredPlans(ctx context.Context, now time.Time) ([]models.CurrentPlan, error)
	ExpireCurrentPlan(ctx context.Context, id uint, now time.Time) (bool, error)

	DeactivateActiveTrials(ctx context.Context, businessID uint) (int64, error)
	DeactivateExpiredTrials(ctx context.Context, businessID uint, now time.Time) (int64, error)
	CreateTrial(ctx context.Context, trial *models.Trial) error
	ListTrials(ctx context.Context, businessID uint) ([]models.Trial, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByReference(ctx context.Context, externalReference string) (*models.Payment, error)
	FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error)
	LockPayment(ctx context.Context, id uint) (*models.Payment, error)
	UpdatePayment(ctx context.Context, id uint, updates map[string]interface{}) error

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, note string, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) FindPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error) {
	var p models.Plan
	if err := r.db.WithContext(ctx).Where("type = ?", planType).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListPlans(ctx context.Context, onlyActive bool) ([]models.Plan, error) {
	var plans []models.Plan
	q := r.db.WithContext(ctx).Order("price ASC, id ASC")
	if onlyActive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&plans).Error
	return plans, err
}

func (r *gormRepository) SavePlan(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *gormRepository) GetBusiness(ctx context.Context, id uint) (*models.Business, error) {
	var b models.Business
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) MirrorBusinessPlan(ctx context.Context, businessID uint, planType models.PlanType, status string, expiresAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Business{}).Where("id = ?", businessID).Updates(map[string]interface{}{
		"plan":            planType,
		"plan_status":     status,
		"plan_expires_at": expiresAt,
	}).Error
}

func (r *gormRepository) MarkBusinessPlanInactive(ctx context.Context, businessID uint) error {
	return r.db.WithContext(ctx).Model(&models.Business{}).
		Where("id = ?", businessID).
		Update("plan_status", models.PlanStatusInactive).Error
}

func (r *gormRepository) GetCurrentPlan(ctx context.Context, businessID uint, forUpdate bool) (*models.CurrentPlan, error) {
	var cp models.CurrentPlan
	q := r.db.WithContext(ctx).Preload("Plan")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("business_id = ?", businessID).First(&cp).Error; err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *gormRepository) UpsertCurrentPlan(ctx context.Context, businessID, planID uint, expiresAt *time.Time) (*models.CurrentPlan, error) {
	db := r.db.WithContext(ctx)
	var cp models.CurrentPlan
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("business_id = ?", businessID).First(&cp).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		used := 0
		cp = models.CurrentPlan{
			BusinessID:   businessID,
			PlanID:       planID,
			IsActive:     true,
			ExpiresAt:    expiresAt,
			ProductsUsed: &used,
		}
		if err := db.Create(&cp).Error; err != nil {
			return nil, err
		}
		return &cp, nil
	case err != nil:
		return nil, err
	}

	updates := map[string]interface{}{
		"plan_id":    planID,
		"is_active":  true,
		"expires_at": expiresAt,
	}
	if cp.ProductsUsed == nil {
		used := 0
		updates["products_used"] = used
		cp.ProductsUsed = &used
	}
	if err := db.Model(&cp).Updates(updates).Error; err != nil {
		return nil, err
	}
	cp.PlanID = planID
	cp.IsActive = true
	cp.ExpiresAt = expiresAt
	cp.Plan = nil
	return &cp, nil
}

func (r *gormRepository) ListExpiredPlans(ctx context.Context, now time.Time) ([]models.CurrentPlan, error) {
	var plans []models.CurrentPlan
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Preload("Business").
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Order("id ASC").
		Find(&plans).Error
	return plans, err
}

// ExpireCurrentPlan deactivates a row only if it is still active and lapsed,
// so overlapping sweeps see false for rows another sweep already handled.
func (r *gormRepository) ExpireCurrentPlan(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CurrentPlan{}).
		Where("id = ? AND is_active = ? AND expires_at < ?", id, true, now).
		Update("is_active", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) DeactivateActiveTrials(ctx context.Context, businessID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Trial{}).
		Where("business_id = ? AND is_active = ?", businessID, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) DeactivateExpiredTrials(ctx context.Context, businessID uint, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Trial{}).
		Where("business_id = ? AND is_active = ? AND expires_at < ?", businessID, true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CreateTrial(ctx context.Context, trial *models.Trial) error {
	return r.db.WithContext(ctx).Create(trial).Error
}

func (r *gormRepository) ListTrials(ctx context.Context, businessID uint) ([]models.Trial, error) {
	var trials []models.Trial
	err := r.db.WithContext(ctx).Where("business_id = ?", businessID).Order("id ASC").Find(&trials).Error
	return trials, err
}

func (r *gormRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *gormRepository) FindPaymentByReference(ctx context.Context, externalReference string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("external_reference = ?", externalReference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("external_payment_id = ?", externalPaymentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) LockPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpdatePayment(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := db.Where("request_id = ?", event.RequestID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, note string, at time.Time) error {
	updates := map[string]interface{}{
		"processed":    true,
		"processed_at": &at,
		"note":         note,
	}
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
