// Package billing implements the subscription lifecycle of a business: plan
// catalog, trials, plan changes, payment webhooks, checkout and expiration.
package billing

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
	"github.com/ManuelReschke/MarketFox/internal/pkg/metrics"
)

// Config carries the tunables of the billing components. Zero values fall
// back to the package defaults.
type Config struct {
	PlanCacheTTL        time.Duration
	TrialDays           int
	PlanDurationDays    int
	SweepConcurrency    int
	NotifyTimeout       time.Duration
	CheckoutURLTemplate string
}

// Deps are the collaborators injected by the process entry point.
type Deps struct {
	Repo     Repository
	Cache    cache.Store
	Clock    Clock
	Notifier Notifier
	Enqueuer Enqueuer
	Activity ActivityLogger
	Metrics  *metrics.Metrics
}

// Services bundles the wired billing components.
type Services struct {
	Catalog       *Catalog
	Trials        *TrialManager
	Subscriptions *SubscriptionManager
	Webhooks      *WebhookProcessor
	Expiration    *ExpirationScheduler
	Checkout      *CheckoutService
}

// New wires all billing components on shared dependencies.
func New(deps Deps, cfg Config) *Services {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryStore(64, cfg.PlanCacheTTL)
	}
	if deps.Enqueuer == nil && deps.Notifier != nil {
		deps.Enqueuer = NewDirectEnqueuer(deps.Notifier, cfg.NotifyTimeout, deps.Metrics)
	}

	catalog := NewCatalog(deps.Repo, deps.Cache, cfg.PlanCacheTTL)
	trials := NewTrialManager(deps.Repo, catalog, deps.Clock, cfg.TrialDays)
	return &Services{
		Catalog:       catalog,
		Trials:        trials,
		Subscriptions: NewSubscriptionManager(deps.Repo, catalog, trials, deps.Clock, deps.Activity, deps.Metrics, cfg.PlanDurationDays),
		Webhooks:      NewWebhookProcessor(deps.Repo, catalog, deps.Clock, deps.Enqueuer, deps.Metrics, cfg.PlanDurationDays),
		Expiration:    NewExpirationScheduler(deps.Repo, deps.Notifier, deps.Activity, deps.Metrics, cfg.SweepConcurrency, cfg.NotifyTimeout),
		Checkout:      NewCheckoutService(deps.Repo, catalog, cfg.CheckoutURLTemplate),
	}
}

// NewFromDB wires the services on a GORM handle with default collaborators.
func NewFromDB(db *gorm.DB, deps Deps, cfg Config) *Services {
	deps.Repo = NewRepository(db)
	return New(deps, cfg)
}
