package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
	"github.com/ManuelReschke/MarketFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/MarketFox/internal/pkg/jobqueue"
)

const apiActor = "api"

// QueueStats reports the background job queue state.
type QueueStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// APIController serves the internal, token protected API.
type APIController struct {
	svc      *billing.Services
	repos    *repository.Repositories
	queue    QueueStats
	validate *validator.Validate
}

func NewAPIController(svc *billing.Services, repos *repository.Repositories, queue QueueStats) *APIController {
	return &APIController{
		svc:      svc,
		repos:    repos,
		queue:    queue,
		validate: validator.New(),
	}
}

type createBusinessRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	OwnerEmail string `json:"owner_email" validate:"omitempty,email"`
}

type changePlanRequest struct {
	Plan             string `json:"plan" validate:"required"`
	IsTrial          bool   `json:"isTrial"`
	TrialDays        int    `json:"trialDays" validate:"gte=0"`
	PlanDurationDays int    `json:"planDurationDays" validate:"gte=0"`
}

type trialRequest struct {
	Plan      string `json:"plan" validate:"required"`
	TrialDays int    `json:"trialDays" validate:"gte=0"`
}

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required"`
}

type updatePlanRequest struct {
	Name                string `json:"name"`
	MaxProducts         int    `json:"max_products"`
	MaxImagesPerProduct int    `json:"max_images_per_product"`
	CanFeatureProducts  bool   `json:"can_feature_products"`
	Price               int64  `json:"price"`
	IsActive            bool   `json:"is_active"`
}

func (ac *APIController) bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return ac.validate.Struct(dst)
}

func businessIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid business id")
	}
	return uint(id), nil
}

func planTypeValue(raw string) (models.PlanType, error) {
	t, err := models.ParsePlanType(raw)
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "unknown plan type "+strings.TrimSpace(raw))
	}
	return t, nil
}

// HandleCreateBusiness registers a business without a plan.
func (ac *APIController) HandleCreateBusiness(c *fiber.Ctx) error {
	var req createBusinessRequest
	if err := ac.bind(c, &req); err != nil {
		return jsonError(c, err)
	}
	b := &models.Business{Name: req.Name, OwnerEmail: req.OwnerEmail}
	if err := ac.repos.Business.Create(c.UserContext(), b); err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "business": b})
}

func (ac *APIController) HandleListBusinesses(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	businesses, err := ac.repos.Business.List(c.UserContext(), offset, limit)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "businesses": businesses})
}

func (ac *APIController) HandleGetBusiness(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	b, err := ac.repos.Business.GetByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, billing.ErrBusinessNotFound)
		}
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "business": b})
}

// HandleChangePlan assigns a paid plan or starts a trial.
func (ac *APIController) HandleChangePlan(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	var req changePlanRequest
	if err := ac.bind(c, &req); err != nil {
		return jsonError(c, err)
	}
	planType, err := planTypeValue(req.Plan)
	if err != nil {
		return jsonError(c, err)
	}

	result, err := ac.svc.Subscriptions.ChangePlan(c.UserContext(), billing.ChangePlanRequest{
		BusinessID:       id,
		PlanType:         planType,
		IsTrial:          req.IsTrial,
		TrialDays:        req.TrialDays,
		PlanDurationDays: req.PlanDurationDays,
		ActorID:          apiActor,
	})
	if err != nil {
		return c.Status(errorStatus(err)).JSON(result)
	}
	return c.JSON(result)
}

// HandleActivateTrial converts the active plan of a business into a trial.
func (ac *APIController) HandleActivateTrial(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	var req trialRequest
	if err := ac.bind(c, &req); err != nil {
		return jsonError(c, err)
	}
	planType, err := planTypeValue(req.Plan)
	if err != nil {
		return jsonError(c, err)
	}

	result, err := ac.svc.Subscriptions.ChangePlan(c.UserContext(), billing.ChangePlanRequest{
		BusinessID: id,
		PlanType:   planType,
		IsTrial:    true,
		TrialDays:  req.TrialDays,
		ActorID:    apiActor,
	})
	if err != nil {
		return c.Status(errorStatus(err)).JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (ac *APIController) HandleListTrials(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	trials, err := ac.svc.Trials.ListTrials(c.UserContext(), id)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "trials": trials})
}

// HandleCreateCheckout opens a pending payment and returns the provider URL.
func (ac *APIController) HandleCreateCheckout(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	var req checkoutRequest
	if err := ac.bind(c, &req); err != nil {
		return jsonError(c, err)
	}
	planType, err := planTypeValue(req.Plan)
	if err != nil {
		return jsonError(c, err)
	}

	payment, url, err := ac.svc.Checkout.CreateCheckout(c.UserContext(), id, planType)
	if err != nil {
		return jsonError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"ok":          true,
		"reference":   payment.ExternalReference,
		"amount":      payment.Amount,
		"plan":        payment.Plan,
		"checkoutUrl": url,
	})
}

func (ac *APIController) HandleGetPayment(c *fiber.Ctx) error {
	payment, err := ac.svc.Checkout.GetPaymentByReference(c.UserContext(), c.Params("reference"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "payment": payment})
}

// HandleGetQuota returns the entitlements of the business's current plan.
func (ac *APIController) HandleGetQuota(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	cp, err := ac.svc.Subscriptions.CurrentPlan(c.UserContext(), id)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "quota": entitlements.Summarize(cp), "expiresAt": cp.ExpiresAt})
}

func (ac *APIController) HandleListActivity(c *fiber.Ctx) error {
	id, err := businessIDParam(c)
	if err != nil {
		return jsonError(c, err)
	}
	entries, err := ac.repos.ActivityLog.ListByEntity(c.UserContext(), "business", strconv.FormatUint(uint64(id), 10), c.QueryInt("limit", 50))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "entries": entries})
}

func (ac *APIController) HandleListPlans(c *fiber.Ctx) error {
	plans, err := ac.svc.Catalog.ListPlans(c.UserContext())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "plans": plans})
}

// HandleUpdatePlan edits a plan definition and invalidates its cache entry.
func (ac *APIController) HandleUpdatePlan(c *fiber.Ctx) error {
	planType, err := planTypeValue(c.Params("type"))
	if err != nil {
		return jsonError(c, err)
	}
	var req updatePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.NewError(fiber.StatusBadRequest, "invalid request body"))
	}

	plan, err := ac.svc.Catalog.UpdatePlan(c.UserContext(), models.Plan{
		Type:                planType,
		Name:                req.Name,
		MaxProducts:         req.MaxProducts,
		MaxImagesPerProduct: req.MaxImagesPerProduct,
		CanFeatureProducts:  req.CanFeatureProducts,
		Price:               req.Price,
		IsActive:            req.IsActive,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "plan": plan})
}

func (ac *APIController) HandleQueueStats(c *fiber.Ctx) error {
	if ac.queue == nil {
		return jsonError(c, fiber.NewError(fiber.StatusServiceUnavailable, "job queue not configured"))
	}
	ctx := c.UserContext()
	stats, err := ac.queue.GetJobStats(ctx)
	if err != nil {
		return jsonError(c, err)
	}
	pending, err := ac.queue.GetQueueSize(ctx)
	if err != nil {
		return jsonError(c, err)
	}
	processing, err := ac.queue.GetProcessingSize(ctx)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "stats": stats, "pending": pending, "processing": processing})
}
