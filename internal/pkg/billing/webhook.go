package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/internal/pkg/metrics"
)

// Ack is the outcome of handling one webhook delivery.
type Ack string

const (
	AckProcessed Ack = "processed"
	AckDuplicate Ack = "duplicate"
	AckOrphan    Ack = "orphan"
	AckIgnored   Ack = "ignored"
	AckFailed    Ack = "failed"
)

const (
	noteIgnoredType = "ignored event type"
	noteOrphan      = "orphan event: no matching payment"
	noteNoStatus    = "no payment status reported"
)

// WebhookInput is one provider delivery.
type WebhookInput struct {
	RequestID  string
	EventType  string
	ExternalID string
	Payload    []byte
}

// Notification is the parsed provider body.
type Notification struct {
	EventID           string
	Type              string
	Action            string
	DataID            string
	Status            string
	ExternalReference string
}

type notificationBody struct {
	ID     flexString `json:"id"`
	Type   string     `json:"type"`
	Action string     `json:"action"`
	Data   struct {
		ID                flexString `json:"id"`
		Status            string     `json:"status"`
		ExternalReference string     `json:"external_reference"`
	} `json:"data"`
}

// flexString accepts both JSON strings and numbers; providers send ids as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ParseNotification decodes a provider webhook body.
func ParseNotification(payload []byte) (*Notification, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errors.New("empty payload")
	}
	var body notificationBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &Notification{
		EventID:           strings.TrimSpace(string(body.ID)),
		Type:              strings.TrimSpace(body.Type),
		Action:            strings.TrimSpace(body.Action),
		DataID:            strings.TrimSpace(string(body.Data.ID)),
		Status:            strings.TrimSpace(body.Data.Status),
		ExternalReference: strings.TrimSpace(body.Data.ExternalReference),
	}, nil
}

// Enqueuer schedules an owner notification for asynchronous delivery.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, to, subject, body string) error
}

// DirectEnqueuer delivers notifications inline through a Notifier. It stands
// in for the job queue when none is configured.
type DirectEnqueuer struct {
	notifier Notifier
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewDirectEnqueuer(notifier Notifier, timeout time.Duration, m *metrics.Metrics) *DirectEnqueuer {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &DirectEnqueuer{notifier: notifier, timeout: timeout, metrics: m}
}

// EnqueueNotification sends right away, bounded by the notify timeout.
func (d *DirectEnqueuer) EnqueueNotification(ctx context.Context, to, subject, body string) error {
	nctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.notifier.Send(nctx, to, subject, body)
	d.metrics.NotificationSent(err)
	return err
}

// WebhookProcessor ingests provider payment events exactly once per request id.
type WebhookProcessor struct {
	repo             Repository
	catalog          *Catalog
	clock            Clock
	enqueuer         Enqueuer
	metrics          *metrics.Metrics
	planDurationDays int
}

func NewWebhookProcessor(repo Repository, catalog *Catalog, clock Clock, enqueuer Enqueuer, m *metrics.Metrics, planDurationDays int) *WebhookProcessor {
	if planDurationDays <= 0 {
		planDurationDays = DefaultPlanDurationDays
	}
	return &WebhookProcessor{
		repo:             repo,
		catalog:          catalog,
		clock:            clock,
		enqueuer:         enqueuer,
		metrics:          m,
		planDurationDays: planDurationDays,
	}
}

// Handle processes one delivery. A returned error always comes with AckFailed
// and means the provider should retry.
func (p *WebhookProcessor) Handle(ctx context.Context, in WebhookInput) (Ack, error) {
	ack, err := p.handle(ctx, in)
	p.metrics.WebhookHandled(string(ack))
	if err != nil {
		log.Errorf("[Webhook] Event %s failed: %v", in.RequestID, err)
	}
	return ack, err
}

func (p *WebhookProcessor) handle(ctx context.Context, in WebhookInput) (Ack, error) {
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		return AckFailed, &InvalidStateError{Reason: "missing request id"}
	}

	event := &models.WebhookEvent{
		RequestID: requestID,
		EventType: strings.TrimSpace(in.EventType),
		Payload:   string(in.Payload),
	}
	if id := strings.TrimSpace(in.ExternalID); id != "" {
		event.ExternalID = &id
	}

	stored, err := p.gate(ctx, event)
	if errors.Is(err, ErrDuplicateEvent) {
		log.Infof("[Webhook] Duplicate delivery %s ignored", requestID)
		return AckDuplicate, nil
	}
	if err != nil {
		return AckFailed, err
	}

	n, err := ParseNotification(in.Payload)
	if err != nil {
		return AckFailed, fmt.Errorf("malformed payload: %w", err)
	}

	eventType := event.EventType
	if eventType == "" {
		eventType = n.Type
	}
	if !isPaymentEvent(eventType) {
		if err := p.repo.MarkWebhookProcessed(ctx, stored.ID, noteIgnoredType, p.clock.Now()); err != nil {
			return AckFailed, transient("mark webhook processed", err)
		}
		return AckIgnored, nil
	}

	rawStatus := n.Status
	if rawStatus == "" {
		rawStatus = statusFromEventType(eventType)
	}
	if rawStatus == "" {
		rawStatus = statusFromEventType(n.Action)
	}
	externalID := n.DataID
	if externalID == "" {
		externalID = strings.TrimSpace(in.ExternalID)
	}

	payment, err := p.correlate(ctx, n.ExternalReference, externalID)
	if errors.Is(err, ErrPaymentNotFound) {
		log.Warnf("[Webhook] Orphan event %s (reference=%q, payment=%q)", requestID, n.ExternalReference, externalID)
		if err := p.repo.MarkWebhookProcessed(ctx, stored.ID, noteOrphan, p.clock.Now()); err != nil {
			return AckFailed, transient("mark webhook processed", err)
		}
		return AckOrphan, nil
	}
	if err != nil {
		return AckFailed, err
	}

	var (
		mapped models.PaymentStatus
		known  bool
	)
	if rawStatus != "" {
		mapped, known = MapProviderStatus(rawStatus)
		if !known {
			log.Warnf("[Webhook] Unknown provider status %q on event %s", rawStatus, requestID)
		}
	}

	var plan *models.Plan
	if known && mapped == models.PaymentApproved && payment.PlanAppliedAt == nil {
		if plan, err = p.catalog.GetPlan(ctx, payment.Plan); err != nil {
			return AckFailed, err
		}
	}

	now := p.clock.Now()
	applied := false
	err = p.repo.WithTx(ctx, func(tx Repository) error {
		locked, err := tx.LockPayment(ctx, payment.ID)
		if err != nil {
			return transient("lock payment", err)
		}

		updates := map[string]interface{}{}
		if externalID != "" && (locked.ExternalPaymentID == nil || *locked.ExternalPaymentID != externalID) {
			updates["external_payment_id"] = externalID
		}
		note := ""
		accepted := false
		switch {
		case !known:
			note = noteNoStatus
		case locked.Status == mapped:
			accepted = true
		case locked.Status.CanMoveTo(mapped):
			updates["status"] = mapped
			accepted = true
		default:
			// late or out of order delivery
			note = fmt.Sprintf("stale status %s ignored, payment is %s", mapped, locked.Status)
		}

		if accepted && mapped == models.PaymentApproved && locked.PlanAppliedAt == nil {
			if plan == nil {
				return errors.New("plan not resolved for approved payment")
			}
			if _, err := applyPaidPlan(ctx, tx, locked.BusinessID, plan, p.planDurationDays, now); err != nil {
				return err
			}
			updates["plan_applied_at"] = now
			applied = true
		}

		if len(updates) > 0 {
			if err := tx.UpdatePayment(ctx, locked.ID, updates); err != nil {
				return transient("update payment", err)
			}
		}
		if err := tx.MarkWebhookProcessed(ctx, stored.ID, note, now); err != nil {
			return transient("mark webhook processed", err)
		}
		return nil
	})
	if err != nil {
		return AckFailed, err
	}

	if applied {
		log.Infof("[Webhook] Payment %s approved, plan %s applied to business %d", payment.ExternalReference, payment.Plan, payment.BusinessID)
		p.enqueueActivation(ctx, payment, plan, daysFrom(now, p.planDurationDays))
	}
	return AckProcessed, nil
}

// gate records the delivery before any effect. It returns ErrDuplicateEvent
// when the request id was already processed; a stored but unprocessed event
// is returned for a re-run.
func (p *WebhookProcessor) gate(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error) {
	created, stored, err := p.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		return nil, transient("store webhook event", err)
	}
	if created {
		return stored, nil
	}
	if stored.Processed {
		return stored, fmt.Errorf("%w: %s", ErrDuplicateEvent, stored.RequestID)
	}
	log.Infof("[Webhook] Re-running unprocessed event %s", stored.RequestID)
	return stored, nil
}

func (p *WebhookProcessor) correlate(ctx context.Context, externalReference, externalID string) (*models.Payment, error) {
	if externalReference != "" {
		payment, err := p.repo.FindPaymentByReference(ctx, externalReference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transient("find payment by reference", err)
		}
	}
	if externalID != "" {
		payment, err := p.repo.FindPaymentByExternalID(ctx, externalID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, transient("find payment by external id", err)
		}
	}
	return nil, ErrPaymentNotFound
}

func (p *WebhookProcessor) enqueueActivation(ctx context.Context, payment *models.Payment, plan *models.Plan, expiresAt time.Time) {
	if p.enqueuer == nil {
		return
	}
	business, err := p.repo.GetBusiness(ctx, payment.BusinessID)
	if err != nil || business.OwnerEmail == "" {
		return
	}
	subject, body := planActivatedMessage(business, plan, expiresAt)
	if err := p.enqueuer.EnqueueNotification(ctx, business.OwnerEmail, subject, body); err != nil {
		log.Warnf("[Webhook] Failed to enqueue activation email for business %d: %v", business.ID, err)
	}
}
