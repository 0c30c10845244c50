package constants

// Static route constants
const (
	HealthRoute       = "/healthz"
	MetricsRoute      = "/metrics"
	CronExpiredRoute  = "/cron/check-plan-expired"
	WebhookRoute      = "/webhooks/payments"
	CheckoutRoute     = "/subscription/checkout"
	APIv1Route        = "/api/v1"
	SubscriptionRoute = "/subscription"
)
