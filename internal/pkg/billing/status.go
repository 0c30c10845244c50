package billing

import (
	"strings"

	"github.com/ManuelReschke/MarketFox/app/models"
)

// MapProviderStatus maps a provider payment status to the internal status.
// Unknown statuses map to pending and report false so the caller can note them.
func MapProviderStatus(status string) (models.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "accredited":
		return models.PaymentApproved, true
	case "pending":
		return models.PaymentPending, true
	case "in_process", "in_mediation", "authorized":
		return models.PaymentInProcess, true
	case "rejected":
		return models.PaymentRejected, true
	case "cancelled", "canceled", "expired":
		return models.PaymentCancelled, true
	case "refunded":
		return models.PaymentRefunded, true
	case "charged_back", "chargeback":
		return models.PaymentChargedBack, true
	default:
		return models.PaymentPending, false
	}
}

// statusFromEventType extracts the status suffix of event types such as
// "payment.approved". It returns "" when the type carries no status.
func statusFromEventType(eventType string) string {
	t := strings.ToLower(strings.TrimSpace(eventType))
	i := strings.LastIndexAny(t, "._")
	if i < 0 || !strings.HasPrefix(t, "payment") {
		return ""
	}
	suffix := t[i+1:]
	switch suffix {
	case "created", "updated", "payment":
		return ""
	}
	return suffix
}

func isPaymentEvent(eventType string) bool {
	t := strings.ToLower(strings.TrimSpace(eventType))
	return t == "" || t == "payment" || strings.HasPrefix(t, "payment.") || strings.HasPrefix(t, "payment_")
}
