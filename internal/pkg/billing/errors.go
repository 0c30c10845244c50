package billing

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrBusinessNotFound = errors.New("business not found")
	ErrPaymentNotFound  = errors.New("payment not found")

	// ErrDuplicateEvent marks a webhook delivery that was already processed.
	// Callers acknowledge it as success.
	ErrDuplicateEvent = errors.New("webhook event already processed")
)

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrBusinessNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// InvalidStateError rejects an operation whose preconditions do not hold.
// Nothing is written when it is returned.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

// TransientError wraps infrastructure failures (database, network) that are
// worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// NotificationError reports a failed owner notification. It never rolls back
// the state transition it belongs to.
type NotificationError struct {
	BusinessID uint
	Err        error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify business %d: %v", e.BusinessID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
