package models

import "time"

// PaymentStatus is the internal payment state derived from provider statuses.
type PaymentStatus string

const (
	PaymentApproved    PaymentStatus = "approved"
	PaymentPending     PaymentStatus = "pending"
	PaymentInProcess   PaymentStatus = "in_process"
	PaymentRejected    PaymentStatus = "rejected"
	PaymentCancelled   PaymentStatus = "cancelled"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentChargedBack PaymentStatus = "charged_back"
)

// Final reports whether no further provider transition is expected.
func (s PaymentStatus) Final() bool {
	switch s {
	case PaymentApproved, PaymentRejected, PaymentCancelled, PaymentRefunded, PaymentChargedBack:
		return true
	}
	return false
}

// CanMoveTo reports whether a provider update may move a payment from s to
// next. Approved payments only move on to a refund or chargeback; every other
// final status is terminal.
func (s PaymentStatus) CanMoveTo(next PaymentStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case PaymentApproved:
		return next == PaymentRefunded || next == PaymentChargedBack
	case PaymentRejected, PaymentCancelled, PaymentRefunded, PaymentChargedBack:
		return false
	}
	return true
}

// Payment is one checkout attempt. It is created at checkout and mutated by
// the webhook and callback paths only.
type Payment struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	BusinessID        uint          `gorm:"not null;index" json:"business_id"`
	Plan              PlanType      `gorm:"type:varchar(20);not null" json:"plan"`
	Amount            int64         `gorm:"not null" json:"amount"`
	Status            PaymentStatus `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ExternalPaymentID *string       `gorm:"type:varchar(191);default:null;index" json:"external_payment_id,omitempty"`
	ExternalReference string        `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_external_reference" json:"external_reference"`
	PlanAppliedAt     *time.Time    `gorm:"type:datetime;default:null" json:"plan_applied_at,omitempty"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
