package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
	"github.com/ManuelReschke/MarketFox/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Deps
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, controllers.HandleHealthz(h.deps.DB))
	app.Get(constants.MetricsRoute, adaptor.HTTPHandler(h.deps.Metrics.Handler()))

	// cron
	cron := controllers.NewCronController(h.deps.Sweeps)
	app.Get(constants.CronExpiredRoute,
		middleware.RequireBearerToken(h.deps.Config.CronSecret, "CRON_SECRET"),
		cron.HandleCheckPlanExpired)

	// payment provider
	billingController := controllers.NewBillingController(h.deps.Billing, h.deps.Config.WebhookSecret)
	app.Post(constants.WebhookRoute, limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
	}), billingController.HandlePaymentWebhook)

	subscription := app.Group(constants.CheckoutRoute)
	subscription.Get("/success", billingController.HandleCheckoutSuccess)
	subscription.Get("/failure", billingController.HandleCheckoutFailure)
}
