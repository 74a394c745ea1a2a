package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeConsent      = "CONSENT_FAILED"
	ErrCodeDriverInit   = "DRIVER_INITIALIZATION_FAILED"
	ErrCodeShoppingData = "SHOPPING_DATA_FAILED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. A ScrapeError matches a sentinel when the codes
// are equal, regardless of message or wrapped cause.
var (
	ErrConsent      = &ScrapeError{Code: ErrCodeConsent, Message: "unable to accept consent form"}
	ErrDriverInit   = &ScrapeError{Code: ErrCodeDriverInit, Message: "unable to initialize browser for scraping"}
	ErrShoppingData = &ScrapeError{Code: ErrCodeShoppingData, Message: "unable to get shopping data with browser"}
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

// Is reports whether target is a ScrapeError with the same code.
func (e *ScrapeError) Is(target error) bool {
	t, ok := target.(*ScrapeError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
