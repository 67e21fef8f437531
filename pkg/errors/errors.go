package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrJobNotFound          = errors.New("sync job not found")
	ErrNoDebtLines          = errors.New("notification has no debt lines")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSessionExpired       = errors.New("erp session expired")
	ErrUnknownBackend       = errors.New("unknown posting backend")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// PartialPostingError reports a two-step posting that created an invoice but
// failed on the payment step. The invoice document ids survive so a retry
// can resume from the payment step instead of re-creating the invoice.
type PartialPostingError struct {
	InvoiceDocEntry int64
	InvoiceDocNum   int64
	Err             error
}

func (e PartialPostingError) Error() string {
	return fmt.Sprintf("payment posting failed after invoice %d was created: %v",
		e.InvoiceDocEntry, e.Err)
}

func (e PartialPostingError) Unwrap() error {
	return e.Err
}
