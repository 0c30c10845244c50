package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
	"github.com/ManuelReschke/MarketFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group(constants.APIv1Route,
		limiter.New(limiter.Config{
			Max:        300,
			Expiration: time.Minute,
			Storage:    h.deps.LimiterStorage,
		}),
		middleware.RequireAPIToken(h.deps.Config.AdminAPIToken, "ADMIN_API_TOKEN"),
	)

	api := controllers.NewAPIController(h.deps.Billing, h.deps.Repos, h.deps.Queue)

	v1.Get("/plans", api.HandleListPlans)
	v1.Put("/plans/:type", api.HandleUpdatePlan)

	v1.Post("/businesses", api.HandleCreateBusiness)
	v1.Get("/businesses", api.HandleListBusinesses)
	v1.Get("/businesses/:id", api.HandleGetBusiness)
	v1.Post("/businesses/:id/plan", api.HandleChangePlan)
	v1.Post("/businesses/:id/trial", api.HandleActivateTrial)
	v1.Get("/businesses/:id/trials", api.HandleListTrials)
	v1.Post("/businesses/:id/checkout", api.HandleCreateCheckout)
	v1.Get("/businesses/:id/quota", api.HandleGetQuota)
	v1.Get("/businesses/:id/activity", api.HandleListActivity)

	v1.Get("/payments/:reference", api.HandleGetPayment)
	v1.Get("/queue", api.HandleQueueStats)
}
