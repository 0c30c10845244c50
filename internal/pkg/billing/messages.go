package billing

import (
	"fmt"
	"html"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
)

const notificationTimeLayout = "2006-01-02 15:04 MST"

func planActivatedMessage(b *models.Business, plan *models.Plan, expiresAt time.Time) (string, string) {
	subject := fmt.Sprintf("Your %s plan is active", plan.Name)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>your payment was approved and the <strong>%s</strong> plan is now active until %s.</p>",
		html.EscapeString(b.Name), html.EscapeString(plan.Name), expiresAt.UTC().Format(notificationTimeLayout),
	)
	return subject, body
}

func planExpiredMessage(b *models.Business, planName string, expiredAt time.Time) (string, string) {
	subject := fmt.Sprintf("Your %s plan has expired", planName)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>your <strong>%s</strong> plan expired on %s. Renew it to keep your listing features.</p>",
		html.EscapeString(b.Name), html.EscapeString(planName), expiredAt.UTC().Format(notificationTimeLayout),
	)
	return subject, body
}
