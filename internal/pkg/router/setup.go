package router

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/billing"
	"github.com/ManuelReschke/MarketFox/internal/pkg/config"
	"github.com/ManuelReschke/MarketFox/internal/pkg/metrics"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the services the routes are served by.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Billing *billing.Services
	Repos   *repository.Repositories
	Sweeps  controllers.SweepRunner
	Queue   controllers.QueueStats
	Metrics *metrics.Metrics

	// LimiterStorage backs the rate limiters. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
