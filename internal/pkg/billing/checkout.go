package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
)

// CheckoutService creates payment attempts and records browser callback outcomes.
type CheckoutService struct {
	repo         Repository
	catalog      *Catalog
	urlTemplate  string
	newReference func() string
}

func NewCheckoutService(repo Repository, catalog *Catalog, urlTemplate string) *CheckoutService {
	return &CheckoutService{
		repo:         repo,
		catalog:      catalog,
		urlTemplate:  urlTemplate,
		newReference: func() string { return uuid.NewString() },
	}
}

// CreateCheckout opens a pending payment for planType and returns it with the
// provider redirect URL.
func (s *CheckoutService) CreateCheckout(ctx context.Context, businessID uint, planType models.PlanType) (*models.Payment, string, error) {
	plan, err := s.catalog.GetPlan(ctx, planType)
	if err != nil {
		return nil, "", err
	}
	if !plan.Purchasable() {
		return nil, "", &InvalidStateError{Reason: fmt.Sprintf("plan %s cannot be purchased", plan.Type)}
	}
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: %d", ErrBusinessNotFound, businessID)
		}
		return nil, "", transient("load business", err)
	}

	payment := &models.Payment{
		BusinessID:        businessID,
		Plan:              plan.Type,
		Amount:            plan.Price,
		Status:            models.PaymentPending,
		ExternalReference: s.newReference(),
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, "", transient("create payment", err)
	}

	log.Infof("[Billing] Checkout %s opened for business %d (%s, %d)", payment.ExternalReference, businessID, plan.Type, plan.Price)
	return payment, s.checkoutURL(payment), nil
}

func (s *CheckoutService) checkoutURL(p *models.Payment) string {
	r := strings.NewReplacer(
		"{reference}", url.QueryEscape(p.ExternalReference),
		"{plan}", url.QueryEscape(string(p.Plan)),
		"{amount}", strconv.FormatInt(p.Amount, 10),
	)
	return r.Replace(s.urlTemplate)
}

// RecordCallbackOutcome stores what the browser redirect reported. The
// redirect is user-controlled, so a reported approval is only recorded as
// in_process and final statuses are never overwritten; the webhook settles
// approval.
func (s *CheckoutService) RecordCallbackOutcome(ctx context.Context, externalReference, providerPaymentID, outcome string) (*models.Payment, error) {
	externalReference = strings.TrimSpace(externalReference)
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if externalReference == "" {
		return nil, ErrPaymentNotFound
	}

	payment, err := s.repo.FindPaymentByReference(ctx, externalReference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, externalReference)
	}
	if err != nil {
		return nil, transient("find payment", err)
	}

	reported, known := MapProviderStatus(outcome)
	if reported == models.PaymentApproved {
		reported = models.PaymentInProcess
	}

	err = s.repo.WithTx(ctx, func(tx Repository) error {
		locked, err := tx.LockPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if providerPaymentID != "" && locked.ExternalPaymentID == nil {
			updates["external_payment_id"] = providerPaymentID
		}
		if known && !locked.Status.Final() && locked.Status != reported {
			updates["status"] = reported
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.UpdatePayment(ctx, locked.ID, updates)
	})
	if err != nil {
		return nil, transient("record callback outcome", err)
	}
	return s.GetPaymentByReference(ctx, externalReference)
}

// GetPaymentByReference looks a payment up by its checkout correlation id.
func (s *CheckoutService) GetPaymentByReference(ctx context.Context, externalReference string) (*models.Payment, error) {
	payment, err := s.repo.FindPaymentByReference(ctx, externalReference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, externalReference)
	}
	if err != nil {
		return nil, transient("find payment", err)
	}
	return payment, nil
}
