package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below unwraps to exactly one of these so
// handlers can map to HTTP status codes without knowing every case.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream failure")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Error is a coded domain error. Code is stable and safe to return to clients.
type Error struct {
	Code    string
	Message string
	Kind    error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, code, msg string) *Error {
	return &Error{Code: code, Message: msg, Kind: kind}
}

var (
	ErrMissingFields   = newError(ErrValidation, "MISSING_FIELDS", "missing required fields")
	ErrInvalidEmail    = newError(ErrValidation, "INVALID_EMAIL", "invalid email address")
	ErrInvalidUsername = newError(ErrValidation, "INVALID_USERNAME", "username must be at least 3 characters")
	ErrInvalidAmount   = newError(ErrValidation, "INVALID_AMOUNT", "amount must be a positive integer")
	ErrInvalidCode     = newError(ErrValidation, "INVALID_OTP", "invalid verification code")
	ErrOTPExpired      = newError(ErrValidation, "OTP_EXPIRED", "verification code has expired, please register again")
	ErrInvalidPayload  = newError(ErrValidation, "INVALID_PAYLOAD", "invalid request body")

	ErrOTPNotFound     = newError(ErrNotFound, "OTP_NOT_FOUND", "no pending verification for this email")
	ErrOrderNotFound   = newError(ErrNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrProductNotFound = newError(ErrNotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrFailureNotFound = newError(ErrNotFound, "FULFILLMENT_FAILURE_NOT_FOUND", "no failed fulfillment for this order")

	ErrAlreadyRegistered      = newError(ErrConflict, "ALREADY_REGISTERED", "email is already registered")
	ErrRegistrationInProgress = newError(ErrConflict, "REGISTRATION_IN_PROGRESS", "email is verified, finish registration")
	ErrTooManyAttempts        = newError(ErrConflict, "TOO_MANY_ATTEMPTS", "too many failed attempts, please register again")
	ErrCooldownActive         = newError(ErrConflict, "COOLDOWN_ACTIVE", "please wait before requesting a new code")
	ErrNotVerified            = newError(ErrConflict, "NOT_VERIFIED", "email has not been verified")
	ErrProductUnavailable     = newError(ErrConflict, "PRODUCT_UNAVAILABLE", "product is not available for purchase")
	ErrProductCodeTaken       = newError(ErrConflict, "PRODUCT_CODE_EXISTS", "product code already exists")
	ErrRetryInProgress        = newError(ErrConflict, "FULFILLMENT_IN_PROGRESS", "fulfillment is already being retried")

	ErrDecryptionFailed      = newError(ErrUpstream, "DECRYPTION_FAILED", "failed to decrypt game credentials")
	ErrUnsupportedKeyVersion = newError(ErrDecryptionFailed, "UNSUPPORTED_KEY_VERSION", "unsupported encryption key version")
	ErrEmailDeliveryFailed   = newError(ErrUpstream, "EMAIL_DELIVERY_FAILED", "failed to send email")
	ErrStockUpdateFailed     = newError(ErrUpstream, "STOCK_UPDATE_FAILED", "failed to update product stock")
)

// CooldownError reports how long the caller must wait before another resend.
type CooldownError struct {
	Remaining int // seconds
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting a new code", e.Remaining)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// Upstream wraps an infrastructure failure so it maps to a generic 500.
func Upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// Invalid reports a request that failed field validation with a message
// naming the offending fields.
func Invalid(msg string) *Error {
	return newError(ErrValidation, "VALIDATION_FAILED", msg)
}
