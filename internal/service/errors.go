// Package service implements the contact connection, profile view, payment
// and admin operations.  Every operation takes the acting user explicitly;
// nothing is read from ambient request state.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/biodata-connect/internal/bkash"
)

// Error kinds returned by the services.  Check them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient connection tokens")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrAlreadyGranted      = fmt.Errorf("%w: contact access already granted", ErrInvalidOperation)
	ErrAccessDenied        = errors.New("contact access denied")
	ErrForbidden           = errors.New("forbidden")

	ErrPaymentGateway         = errors.New("payment gateway error")
	ErrPaymentGatewayTimeout  = fmt.Errorf("%w: timeout", ErrPaymentGateway)
	ErrPaymentInitFailed      = fmt.Errorf("%w: payment initialization failed", ErrPaymentGateway)
	ErrPaymentExecutionFailed = errors.New("payment execution failed")
)

// gatewayError translates a payment client error into the service taxonomy.
func gatewayError(err error) error {
	if errors.Is(err, bkash.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrPaymentGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrPaymentGateway, err)
}
