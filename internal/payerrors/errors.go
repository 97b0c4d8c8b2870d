// Package payerrors defines the error taxonomy shared by the purchase
// lifecycle. Errors raised before settlement are surfaced to the purchase
// caller; errors raised after settlement are absorbed and retried internally.
package payerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable marks a transient gateway failure. Retryable.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrPaymentDeclined marks a terminal gateway decline. No voucher is issued.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrAuthorizationTimeout marks a transaction that was not authorized
	// within the allowed window.
	ErrAuthorizationTimeout = errors.New("authorization timed out")

	// ErrVoucherCollision marks a generated code that already exists.
	// Internal only; generation retries until a free code is found.
	ErrVoucherCollision = errors.New("voucher code collision")

	// ErrBindingConflict marks a second bind attempt with a different
	// phone or MAC. The existing binding is preserved.
	ErrBindingConflict = errors.New("voucher already bound to another device")

	// ErrActivationFailure marks a controller grant failure. Retried in the
	// background; the voucher and payment remain valid.
	ErrActivationFailure = errors.New("network activation failed")

	// ErrNotificationFailure marks an SMS delivery failure. Never affects
	// voucher or access state.
	ErrNotificationFailure = errors.New("notification delivery failed")

	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")

	// ErrPendingPurchase marks a phone number that already has an open
	// purchase attempt.
	ErrPendingPurchase = errors.New("another purchase is already pending for this phone number")

	// ErrTerminalState marks an operation against a transaction whose
	// state admits no further transitions.
	ErrTerminalState = errors.New("transaction is in a terminal state")
)

// ValidationError rejects bad input immediately. User-facing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError creates a field-level validation error
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports whether the caller may safely retry the operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrActivationFailure)
}
