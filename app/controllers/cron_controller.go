package controllers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
)

// SweepRunner runs one expiration sweep at the current time.
type SweepRunner interface {
	RunSweepOnce(ctx context.Context) (*billing.SweepReport, error)
}

type CronController struct {
	sweeps SweepRunner
}

func NewCronController(sweeps SweepRunner) *CronController {
	return &CronController{sweeps: sweeps}
}

// HandleCheckPlanExpired is called by the external scheduler.
func (cc *CronController) HandleCheckPlanExpired(c *fiber.Ctx) error {
	report, err := cc.sweeps.RunSweepOnce(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"ok":          true,
		"checked":     report.Checked,
		"deactivated": report.Deactivated,
		"failures":    report.Failures,
		"message":     fmt.Sprintf("%d plan(s) deactivated", report.Deactivated),
	})
}
