package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeAdmissionTimeout = "ADMISSION_TIMEOUT"
	ErrCodePoolExhausted    = "POOL_EXHAUSTED"
	ErrCodeNoVariantFound   = "NO_VARIANT_FOUND"
	ErrCodeNavigation       = "NAVIGATION_TIMEOUT"
	ErrCodePriceNotFound    = "PRICE_NOT_FOUND"
	ErrCodeBrowserLaunch    = "BROWSER_LAUNCH_FAILURE"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf extracts the error code from err's ScrapeError, or ErrCodeInternal
// when err carries none.
func CodeOf(err error) string {
	var serr *ScrapeError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ErrCodeInternal
}

// Retryable reports whether a request with the same input may succeed later.
// Admission saturation, slow navigation and missed extraction are transient;
// a missing variant is not.
func (e *ScrapeError) Retryable() bool {
	switch e.Code {
	case ErrCodeAdmissionTimeout, ErrCodeNavigation, ErrCodePriceNotFound:
		return true
	default:
		return false
	}
}
