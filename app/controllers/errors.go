package controllers

import (
	"encoding/json"
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
)

// errorStatus maps billing errors to HTTP status codes
func errorStatus(err error) int {
	var ise *billing.InvalidStateError
	var verr validator.ValidationErrors
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case billing.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.As(err, &ise):
		return fiber.StatusConflict
	case errors.As(err, &verr):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func jsonError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
		msg = "internal error, please retry"
	}
	return c.Status(status).JSON(fiber.Map{"ok": false, "error": msg})
}

// NewErrorHandler converts errors escaping the handlers into JSON responses.
// Server errors are reported to Sentry and recorded as HTTP_UNHANDLED_ERROR.
func NewErrorHandler(activity repository.ActivityLogRepository) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code >= fiber.StatusInternalServerError {
			log.Errorf("[HTTP] Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
			sentry.CaptureException(err)
			if activity != nil {
				details, _ := json.Marshal(map[string]string{
					"method": c.Method(),
					"path":   c.Path(),
					"error":  err.Error(),
				})
				entry := &models.ActivityLog{
					Action:     models.ActionHTTPUnhandledError,
					EntityType: "http",
					EntityID:   c.Path(),
					Details:    string(details),
				}
				if lerr := activity.Append(c.UserContext(), entry); lerr != nil {
					log.Warnf("[HTTP] Failed to record unhandled error: %v", lerr)
				}
			}
			return c.Status(code).JSON(fiber.Map{"ok": false, "error": "internal server error"})
		}
		return c.Status(code).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
}
