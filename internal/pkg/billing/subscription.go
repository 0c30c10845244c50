package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/internal/pkg/metrics"
)

const DefaultPlanDurationDays = 30

// ActivityLogger appends audit entries.
type ActivityLogger interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
}

// ChangePlanRequest describes a plan assignment. Zero TrialDays and
// PlanDurationDays fall back to the configured defaults.
type ChangePlanRequest struct {
	BusinessID       uint
	PlanType         models.PlanType
	IsTrial          bool
	TrialDays        int
	PlanDurationDays int
	ActorID          string
}

// ChangePlanResult is the uniform outcome of ChangePlan, returned on both
// success and failure.
type ChangePlanResult struct {
	OK        bool            `json:"ok"`
	Message   string          `json:"message"`
	Plan      models.PlanType `json:"plan,omitempty"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	Trial     *models.Trial   `json:"trial,omitempty"`
}

// SubscriptionManager is the only writer of plan state for a business.
type SubscriptionManager struct {
	repo             Repository
	catalog          *Catalog
	trials           *TrialManager
	clock            Clock
	activity         ActivityLogger
	metrics          *metrics.Metrics
	planDurationDays int
}

func NewSubscriptionManager(repo Repository, catalog *Catalog, trials *TrialManager, clock Clock, activity ActivityLogger, m *metrics.Metrics, planDurationDays int) *SubscriptionManager {
	if planDurationDays <= 0 {
		planDurationDays = DefaultPlanDurationDays
	}
	return &SubscriptionManager{
		repo:             repo,
		catalog:          catalog,
		trials:           trials,
		clock:            clock,
		activity:         activity,
		metrics:          m,
		planDurationDays: planDurationDays,
	}
}

// ChangePlan sets the business's plan. It is a "set to" operation: repeating
// it recomputes the expiration from now instead of extending it.
func (s *SubscriptionManager) ChangePlan(ctx context.Context, req ChangePlanRequest) (ChangePlanResult, error) {
	plan, err := s.catalog.GetPlan(ctx, req.PlanType)
	if err != nil {
		return failed(err), err
	}
	if _, err := s.repo.GetBusiness(ctx, req.BusinessID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("%w: %d", ErrBusinessNotFound, req.BusinessID)
		} else {
			err = transient("load business", err)
		}
		return failed(err), err
	}

	var result ChangePlanResult
	if req.IsTrial {
		trial, err := s.trials.ActivateTrial(ctx, req.BusinessID, plan.Type, req.TrialDays)
		if err != nil {
			return failed(err), err
		}
		expiresAt := trial.ExpiresAt
		result = ChangePlanResult{
			OK:        true,
			Message:   fmt.Sprintf("Trial of %s activated until %s", plan.Name, expiresAt.Format(time.DateOnly)),
			Plan:      plan.Type,
			ExpiresAt: &expiresAt,
			Trial:     trial,
		}
	} else {
		days := req.PlanDurationDays
		if days <= 0 {
			days = s.planDurationDays
		}
		var cp *models.CurrentPlan
		err := s.repo.WithTx(ctx, func(tx Repository) error {
			var err error
			cp, err = applyPaidPlan(ctx, tx, req.BusinessID, plan, days, s.clock.Now())
			return err
		})
		if err != nil {
			return failed(err), err
		}
		result = ChangePlanResult{
			OK:        true,
			Message:   fmt.Sprintf("Plan %s activated until %s", plan.Name, cp.ExpiresAt.Format(time.DateOnly)),
			Plan:      plan.Type,
			ExpiresAt: cp.ExpiresAt,
		}
	}

	log.Infof("[Billing] Business %d changed to %s (trial=%t)", req.BusinessID, plan.Type, req.IsTrial)
	s.metrics.PlanChanged(string(plan.Type), req.IsTrial)
	s.appendChangeLog(ctx, req, result)
	return result, nil
}

// CurrentPlan returns the business's plan assignment with its Plan loaded.
func (s *SubscriptionManager) CurrentPlan(ctx context.Context, businessID uint) (*models.CurrentPlan, error) {
	cp, err := s.repo.GetCurrentPlan(ctx, businessID, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no plan assigned to business %d", ErrPlanNotFound, businessID)
	}
	if err != nil {
		return nil, transient("load current plan", err)
	}
	return cp, nil
}

func (s *SubscriptionManager) appendChangeLog(ctx context.Context, req ChangePlanRequest, result ChangePlanResult) {
	if s.activity == nil {
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = models.ActorSystem
	}
	details, _ := json.Marshal(map[string]interface{}{
		"plan":      result.Plan,
		"isTrial":   req.IsTrial,
		"expiresAt": result.ExpiresAt,
	})
	entry := &models.ActivityLog{
		ActorID:    actor,
		Action:     models.ActionPlanChanged,
		EntityType: "business",
		EntityID:   strconv.FormatUint(uint64(req.BusinessID), 10),
		Details:    string(details),
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		log.Warnf("[Billing] Failed to append %s log for business %d: %v", models.ActionPlanChanged, req.BusinessID, err)
	}
}

func failed(err error) ChangePlanResult {
	var ise *InvalidStateError
	switch {
	case errors.As(err, &ise):
		return ChangePlanResult{Message: "Rejected: " + ise.Reason}
	case errors.Is(err, ErrPlanNotFound):
		return ChangePlanResult{Message: "Plan not found"}
	case errors.Is(err, ErrBusinessNotFound):
		return ChangePlanResult{Message: "Business not found"}
	default:
		return ChangePlanResult{Message: "Plan change failed, please retry"}
	}
}

// applyPaidPlan assigns a paid plan for days starting at now. Any active trial
// is ended first so a business never holds a trial next to a paid plan.
// Must run inside a transaction.
func applyPaidPlan(ctx context.Context, tx Repository, businessID uint, plan *models.Plan, days int, now time.Time) (*models.CurrentPlan, error) {
	if _, err := tx.DeactivateActiveTrials(ctx, businessID); err != nil {
		return nil, transient("deactivate trials", err)
	}
	expiresAt := daysFrom(now, days)
	return applyPlanState(ctx, tx, businessID, plan, &expiresAt)
}

// applyPlanState writes the CurrentPlan row and mirrors it onto the Business
// in the caller's transaction.
func applyPlanState(ctx context.Context, tx Repository, businessID uint, plan *models.Plan, expiresAt *time.Time) (*models.CurrentPlan, error) {
	cp, err := tx.UpsertCurrentPlan(ctx, businessID, plan.ID, expiresAt)
	if err != nil {
		return nil, transient("write current plan", err)
	}
	if err := tx.MirrorBusinessPlan(ctx, businessID, plan.Type, models.PlanStatusActive, expiresAt); err != nil {
		return nil, transient("mirror business plan", err)
	}
	cp.Plan = plan
	return cp, nil
}
