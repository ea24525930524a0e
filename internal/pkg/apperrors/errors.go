// Package apperrors defines the error taxonomy of the settlement core.
// Callers match with errors.Is against the sentinel values; the concrete
// types carry detail for logging and HTTP mapping.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Sentinel errors for errors.Is matching.
var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrPayment            = errors.New("payment error")
	ErrInventoryExhausted = errors.New("inventory exhausted")
	ErrExternalService    = errors.New("external service error")
)

// Error wraps a sentinel kind with a caller-facing message and an optional
// underlying cause. The cause is logged, never exposed.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, message string, cause ...error) *Error {
	e := &Error{Kind: kind, Message: message}
	if len(cause) > 0 {
		e.Cause = cause[0]
	}
	return e
}

// Validation reports malformed input, signature failures and over-refund
// requests. Never retried automatically.
func Validation(message string, cause ...error) *Error {
	return newError(ErrValidation, message, cause...)
}

// Conflict reports an illegal state transition. The idempotent settle
// operation itself never returns this; only invalid transitions do.
func Conflict(message string, cause ...error) *Error {
	return newError(ErrConflict, message, cause...)
}

// NotFound reports an unknown order, payment or session.
func NotFound(message string, cause ...error) *Error {
	return newError(ErrNotFound, message, cause...)
}

// Payment reports an amount mismatch or a gateway-reported charge failure.
func Payment(message string, cause ...error) *Error {
	return newError(ErrPayment, message, cause...)
}

// InventoryExhausted reports stock no longer available at settlement time.
func InventoryExhausted(message string, cause ...error) *Error {
	return newError(ErrInventoryExhausted, message, cause...)
}

// ExternalService reports an unreachable or timed-out gateway. Retryable by
// the caller's queue/backoff policy.
func ExternalService(message string, cause ...error) *Error {
	return newError(ErrExternalService, message, cause...)
}

// HTTPStatus maps an error to the response status the controllers use.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInventoryExhausted):
		return fiber.StatusConflict
	case errors.Is(err, ErrPayment):
		return fiber.StatusPaymentRequired
	case errors.Is(err, ErrExternalService):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
