package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
	"github.com/ManuelReschke/MarketFox/internal/pkg/database"
)

const testWebhookSecret = "whsec_test"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedSweeps struct {
	svc *billing.Services
	now time.Time
	err error
}

func (f *fixedSweeps) RunSweepOnce(ctx context.Context) (*billing.SweepReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.svc.Expiration.Sweep(ctx, f.now)
}

type testServer struct {
	app    *fiber.App
	db     *gorm.DB
	svc    *billing.Services
	repos  *repository.Repositories
	sweeps *fixedSweeps
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.SeedPlans(db))

	repos := repository.NewRepositories(db)
	svc := billing.NewFromDB(db, billing.Deps{
		Clock:    billing.ClockFunc(func() time.Time { return testNow }),
		Activity: repos.ActivityLog,
	}, billing.Config{
		TrialDays:           30,
		PlanDurationDays:    30,
		CheckoutURLTemplate: "https://pay.example.com/?ref={reference}",
	})
	sweeps := &fixedSweeps{svc: svc, now: testNow}

	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(repos.ActivityLog)})
	bc := NewBillingController(svc, testWebhookSecret)
	app.Post("/webhooks/payments", bc.HandlePaymentWebhook)
	app.Get("/subscription/checkout/success", bc.HandleCheckoutSuccess)
	app.Get("/subscription/checkout/failure", bc.HandleCheckoutFailure)
	app.Get("/cron/check-plan-expired", NewCronController(sweeps).HandleCheckPlanExpired)
	app.Get("/healthz", HandleHealthz(db))

	ac := NewAPIController(svc, repos, nil)
	api := app.Group("/api/v1")
	api.Post("/businesses", ac.HandleCreateBusiness)
	api.Get("/businesses", ac.HandleListBusinesses)
	api.Get("/businesses/:id", ac.HandleGetBusiness)
	api.Post("/businesses/:id/plan", ac.HandleChangePlan)
	api.Post("/businesses/:id/trial", ac.HandleActivateTrial)
	api.Get("/businesses/:id/trials", ac.HandleListTrials)
	api.Post("/businesses/:id/checkout", ac.HandleCreateCheckout)
	api.Get("/businesses/:id/quota", ac.HandleGetQuota)
	api.Get("/businesses/:id/activity", ac.HandleListActivity)
	api.Get("/payments/:reference", ac.HandleGetPayment)
	api.Get("/plans", ac.HandleListPlans)
	api.Put("/plans/:type", ac.HandleUpdatePlan)
	api.Get("/queue", ac.HandleQueueStats)
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("kaboom") })

	return &testServer{app: app, db: db, svc: svc, repos: repos, sweeps: sweeps}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (s *testServer) createBusiness(t *testing.T, name string) uint {
	t.Helper()
	b := &models.Business{Name: name, OwnerEmail: name + "@example.com"}
	require.NoError(t, s.repos.Business.Create(context.Background(), b))
	return b.ID
}

func (s *testServer) openCheckout(t *testing.T, businessID uint, plan models.PlanType) *models.Payment {
	t.Helper()
	payment, _, err := s.svc.Checkout.CreateCheckout(context.Background(), businessID, plan)
	require.NoError(t, err)
	return payment
}

func (s *testServer) webhook(t *testing.T, requestID, dataID string, payload map[string]interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	ts := "1767225600"
	sig := billing.SignManifest(billing.SignatureManifest(dataID, requestID, ts), testWebhookSecret)
	return s.do(t, "POST", "/webhooks/payments", payload, map[string]string{
		"x-request-id": requestID,
		"x-signature":  fmt.Sprintf("ts=%s,v1=%s", ts, sig),
	})
}

func approvedPayload(dataID, reference string) map[string]interface{} {
	return map[string]interface{}{
		"type": "payment",
		"data": map[string]interface{}{"id": dataID, "status": "approved", "external_reference": reference},
	}
}

func TestPaymentWebhookAppliesPlan(t *testing.T) {
	s := newTestServer(t)
	id := s.createBusiness(t, "acme")
	payment := s.openCheckout(t, id, models.PlanBasic)

	resp, body := s.webhook(t, "evt-1", "pay-123", approvedPayload("pay-123", payment.ExternalReference))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Nil(t, body["duplicate"])

	var cp models.CurrentPlan
	require.NoError(t, s.db.Where("business_id = ?", id).First(&cp).Error)
	assert.True(t, cp.IsActive)

	resp, body = s.webhook(t, "evt-1", "pay-123", approvedPayload("pay-123", payment.ExternalReference))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])
}

func TestPaymentWebhookRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, "POST", "/webhooks/payments", map[string]interface{}{"data": map[string]string{"id": "1"}}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, "POST", "/webhooks/payments", approvedPayload("pay-1", "ref"), map[string]string{
		"x-request-id": "evt-bad",
		"x-signature":  "ts=1,v1=deadbeef",
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var n int64
	require.NoError(t, s.db.Model(&models.WebhookEvent{}).Count(&n).Error)
	assert.Zero(t, n, "rejected deliveries are not stored")
}

func TestPaymentWebhookRequestIDFallsBackToBodyID(t *testing.T) {
	s := newTestServer(t)
	payload := map[string]interface{}{"id": 777, "type": "payment", "data": map[string]interface{}{"id": "pay-9", "status": "approved"}}
	ts := "1"
	sig := billing.SignManifest(billing.SignatureManifest("pay-9", "777", ts), testWebhookSecret)

	resp, body := s.do(t, "POST", "/webhooks/payments", payload, map[string]string{"x-signature": "ts=1,v1=" + sig})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["orphan"])

	var ev models.WebhookEvent
	require.NoError(t, s.db.First(&ev).Error)
	assert.Equal(t, "777", ev.RequestID)
}

func TestPaymentWebhookMalformedIsRetryable(t *testing.T) {
	s := newTestServer(t)
	ts := "1"
	sig := billing.SignManifest(billing.SignatureManifest("", "evt-x", ts), testWebhookSecret)

	resp, body := s.do(t, "POST", "/webhooks/payments", []byte("{not json"), map[string]string{
		"x-request-id": "evt-x",
		"x-signature":  "ts=1,v1=" + sig,
	})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
}

func TestCheckoutCallbacks(t *testing.T) {
	s := newTestServer(t)
	id := s.createBusiness(t, "shop")
	payment := s.openCheckout(t, id, models.PlanPremium)

	resp, _ := s.do(t, "GET", "/subscription/checkout/success?external_reference="+payment.ExternalReference+"&payment_id=pay-5&status=approved", nil, nil)
	assert.GreaterOrEqual(t, resp.StatusCode, 300)
	assert.Less(t, resp.StatusCode, 400)
	assert.Equal(t, "/subscription", resp.Header.Get("Location"))

	stored, err := s.svc.Checkout.GetPaymentByReference(context.Background(), payment.ExternalReference)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentInProcess, stored.Status, "browser approval never settles a payment")
	require.NotNil(t, stored.ExternalPaymentID)
	assert.Equal(t, "pay-5", *stored.ExternalPaymentID)

	var n int64
	require.NoError(t, s.db.Model(&models.CurrentPlan{}).Where("business_id = ?", id).Count(&n).Error)
	assert.Zero(t, n)

	resp, _ = s.do(t, "GET", "/subscription/checkout/failure", nil, nil)
	assert.Equal(t, "/subscription", resp.Header.Get("Location"))

	resp, _ = s.do(t, "GET", "/subscription/checkout/failure?external_reference=unknown", nil, nil)
	assert.Equal(t, "/subscription", resp.Header.Get("Location"))
}

func TestCronCheckPlanExpired(t *testing.T) {
	s := newTestServer(t)
	id := s.createBusiness(t, "lapsed")
	_, err := s.svc.Subscriptions.ChangePlan(context.Background(), billing.ChangePlanRequest{BusinessID: id, PlanType: models.PlanBasic})
	require.NoError(t, err)

	s.sweeps.now = testNow.Add(31 * 24 * time.Hour)
	resp, body := s.do(t, "GET", "/cron/check-plan-expired", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["deactivated"])

	s.sweeps.err = errors.New("db down")
	resp, body = s.do(t, "GET", "/cron/check-plan-expired", nil, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
}

func TestAPIChangePlanAndQuota(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/api/v1/businesses", map[string]string{"name": "acme", "owner_email": "owner@acme.test"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	id := uint(body["business"].(map[string]interface{})["id"].(float64))

	resp, body = s.do(t, "GET", "/api/v1/businesses?limit=10", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, body["businesses"], 1)
	assert.Equal(t, "owner@acme.test", body["businesses"].([]interface{})[0].(map[string]interface{})["owner_email"])

	resp, body = s.do(t, "GET", fmt.Sprintf("/api/v1/businesses/%d/quota", id), nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/plan", id), map[string]interface{}{"plan": "premium"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Plan Premium activated until 2026-03-31", body["message"])

	resp, body = s.do(t, "GET", fmt.Sprintf("/api/v1/businesses/%d/quota", id), nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	quota := body["quota"].(map[string]interface{})
	assert.Equal(t, "PREMIUM", quota["plan"])
	assert.Equal(t, true, quota["canAddProduct"])
	assert.Equal(t, true, quota["canFeatureProducts"])
	assert.Equal(t, float64(0), quota["productsUsed"])

	resp, body = s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/trial", id), map[string]interface{}{"plan": "basic", "trialDays": 7}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Trial of Basic activated until 2026-03-08", body["message"])

	resp, body = s.do(t, "GET", fmt.Sprintf("/api/v1/businesses/%d/trials", id), nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["trials"], 1)

	resp, body = s.do(t, "GET", fmt.Sprintf("/api/v1/businesses/%d/activity", id), nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 2)
}

func TestAPIChangePlanErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.createBusiness(t, "acme")

	resp, _ := s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/plan", id), map[string]interface{}{"plan": "GOLD"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/plan", id), map[string]interface{}{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := s.do(t, "POST", "/api/v1/businesses/999/plan", map[string]interface{}{"plan": "BASIC"}, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Business not found", body["message"])

	resp, body = s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/trial", id), map[string]interface{}{"plan": "BASIC"}, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["ok"])

	resp, _ = s.do(t, "GET", "/api/v1/businesses/abc", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPICheckoutAndPayment(t *testing.T) {
	s := newTestServer(t)
	id := s.createBusiness(t, "acme")

	resp, body := s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/checkout", id), map[string]string{"plan": "basic"}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	ref := body["reference"].(string)
	assert.Equal(t, "https://pay.example.com/?ref="+ref, body["checkoutUrl"])
	assert.Equal(t, float64(14999), body["amount"])

	resp, body = s.do(t, "GET", "/api/v1/payments/"+ref, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, "POST", fmt.Sprintf("/api/v1/businesses/%d/checkout", id), map[string]string{"plan": "free"}, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/api/v1/payments/missing", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAPIPlans(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "GET", "/api/v1/plans", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["plans"], 3)

	resp, body = s.do(t, "PUT", "/api/v1/plans/basic", map[string]interface{}{
		"name": "Basic+", "max_products": 80, "max_images_per_product": 6, "price": 17999, "is_active": true,
	}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Basic+", body["plan"].(map[string]interface{})["name"])

	plan, err := s.svc.Catalog.GetPlan(context.Background(), models.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, 80, plan.MaxProducts)

	resp, _ = s.do(t, "PUT", "/api/v1/plans/basic", map[string]interface{}{"name": "", "price": -1}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAPIQueueStatsWithoutQueue(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, "GET", "/api/v1/queue", nil, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestErrorHandlerRecordsUnhandledErrors(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "GET", "/boom", nil, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])

	n, err := s.repos.ActivityLog.CountByAction(context.Background(), models.ActionHTTPUnhandledError)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	resp, _ = s.do(t, "GET", "/nope", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, "GET", "/healthz", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
