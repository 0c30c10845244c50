package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
)

const webhookTimeout = 15 * time.Second

// BillingController serves the payment provider facing routes.
type BillingController struct {
	webhooks      *billing.WebhookProcessor
	checkout      *billing.CheckoutService
	webhookSecret string
}

func NewBillingController(svc *billing.Services, webhookSecret string) *BillingController {
	return &BillingController{
		webhooks:      svc.Webhooks,
		checkout:      svc.Checkout,
		webhookSecret: webhookSecret,
	}
}

// HandlePaymentWebhook ingests one provider notification. Only a 5xx makes
// the provider retry.
func (bc *BillingController) HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	notification, _ := billing.ParseNotification(rawBody)

	requestID := strings.TrimSpace(c.Get("x-request-id"))
	if requestID == "" && notification != nil {
		requestID = notification.EventID
	}
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "missing request id"})
	}

	dataID := strings.TrimSpace(c.Query("data.id"))
	if dataID == "" && notification != nil {
		dataID = notification.DataID
	}

	if bc.webhookSecret != "" && !billing.VerifyWebhookSignature(c.Get("x-signature"), requestID, dataID, bc.webhookSecret) {
		log.Warnf("[Webhook] Rejected delivery %s: invalid signature", requestID)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "invalid signature"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	ack, err := bc.webhooks.Handle(ctx, billing.WebhookInput{
		RequestID:  requestID,
		EventType:  firstQueryValue(c, "type", "topic"),
		ExternalID: dataID,
		Payload:    rawBody,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}

	switch ack {
	case billing.AckDuplicate:
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	case billing.AckIgnored:
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	case billing.AckOrphan:
		return c.JSON(fiber.Map{"ok": true, "orphan": true})
	default:
		return c.JSON(fiber.Map{"ok": true})
	}
}

// HandleCheckoutSuccess records the browser return from a completed checkout.
// The plan itself is only applied by the webhook.
func (bc *BillingController) HandleCheckoutSuccess(c *fiber.Ctx) error {
	return bc.handleCallback(c, c.Query("status", "approved"),
		"Payment received. Your plan will be activated once the payment is confirmed.")
}

// HandleCheckoutFailure records the browser return from an aborted checkout.
func (bc *BillingController) HandleCheckoutFailure(c *fiber.Ctx) error {
	return bc.handleCallback(c, c.Query("status", "rejected"),
		"The payment was not completed. No charge was made.")
}

func (bc *BillingController) handleCallback(c *fiber.Ctx, outcome, message string) error {
	reference := strings.TrimSpace(c.Query("external_reference"))
	if reference == "" {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Missing payment reference"}).Redirect(constants.SubscriptionRoute)
	}

	paymentID := firstQueryValue(c, "payment_id", "collection_id")
	if _, err := bc.checkout.RecordCallbackOutcome(c.UserContext(), reference, paymentID, outcome); err != nil {
		log.Warnf("[Billing] Checkout callback for %s failed: %v", reference, err)
		if billing.IsNotFound(err) {
			return flash.WithError(c, fiber.Map{"type": "error", "message": "Unknown payment reference"}).Redirect(constants.SubscriptionRoute)
		}
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not record the payment, please check again later"}).Redirect(constants.SubscriptionRoute)
	}

	if strings.EqualFold(outcome, "approved") {
		return flash.WithSuccess(c, fiber.Map{"type": "success", "message": message}).Redirect(constants.SubscriptionRoute)
	}
	return flash.WithInfo(c, fiber.Map{"type": "info", "message": message}).Redirect(constants.SubscriptionRoute)
}

func firstQueryValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
	}
	return ""
}
