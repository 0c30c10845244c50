package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
)

const DefaultTrialDays = 30

var errNoActivePlan = &InvalidStateError{Reason: "no active plan to convert to trial"}

// TrialManager grants time-boxed trials and keeps at most one active trial
// per business.
type TrialManager struct {
	repo        Repository
	catalog     *Catalog
	clock       Clock
	defaultDays int
}

func NewTrialManager(repo Repository, catalog *Catalog, clock Clock, defaultDays int) *TrialManager {
	if defaultDays <= 0 {
		defaultDays = DefaultTrialDays
	}
	return &TrialManager{repo: repo, catalog: catalog, clock: clock, defaultDays: defaultDays}
}

// ActivateTrial converts the business's active plan into a trial of planType
// lasting trialDays (the configured default when trialDays <= 0). Any prior
// active trial is deactivated in the same transaction.
func (m *TrialManager) ActivateTrial(ctx context.Context, businessID uint, planType models.PlanType, trialDays int) (*models.Trial, error) {
	if trialDays <= 0 {
		trialDays = m.defaultDays
	}
	plan, err := m.catalog.GetPlan(ctx, planType)
	if err != nil {
		return nil, err
	}
	if _, err := m.repo.GetBusiness(ctx, businessID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrBusinessNotFound, businessID)
		}
		return nil, transient("load business", err)
	}

	now := m.clock.Now()
	expiresAt := daysFrom(now, trialDays)
	trial := &models.Trial{
		BusinessID:  businessID,
		Plan:        plan.Type,
		ActivatedAt: now,
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}

	err = m.repo.WithTx(ctx, func(tx Repository) error {
		cp, err := tx.GetCurrentPlan(ctx, businessID, true)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNoActivePlan
		}
		if err != nil {
			return transient("lock current plan", err)
		}
		if !cp.IsActive {
			return errNoActivePlan
		}

		deactivated, err := tx.DeactivateActiveTrials(ctx, businessID)
		if err != nil {
			return transient("deactivate trials", err)
		}
		if deactivated > 0 {
			log.Infof("[Billing] Deactivated %d previous trial(s) for business %d", deactivated, businessID)
		}
		if err := tx.CreateTrial(ctx, trial); err != nil {
			return transient("create trial", err)
		}
		_, err = applyPlanState(ctx, tx, businessID, plan, &expiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Billing] Trial %s activated for business %d until %s", plan.Type, businessID, expiresAt.Format("2006-01-02 15:04:05"))
	return trial, nil
}

// ListTrials returns the trial history of a business, oldest first.
func (m *TrialManager) ListTrials(ctx context.Context, businessID uint) ([]models.Trial, error) {
	trials, err := m.repo.ListTrials(ctx, businessID)
	if err != nil {
		return nil, transient("list trials", err)
	}
	return trials, nil
}
