package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatusCanMoveTo(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentPending, PaymentInProcess, true},
		{PaymentPending, PaymentApproved, true},
		{PaymentInProcess, PaymentRejected, true},
		{PaymentInProcess, PaymentPending, true},
		{PaymentApproved, PaymentRefunded, true},
		{PaymentApproved, PaymentChargedBack, true},
		{PaymentApproved, PaymentPending, false},
		{PaymentApproved, PaymentRejected, false},
		{PaymentApproved, PaymentApproved, false},
		{PaymentRefunded, PaymentApproved, false},
		{PaymentChargedBack, PaymentApproved, false},
		{PaymentRejected, PaymentApproved, false},
		{PaymentCancelled, PaymentApproved, false},
		{PaymentRefunded, PaymentInProcess, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanMoveTo(tt.to))
		})
	}
}
