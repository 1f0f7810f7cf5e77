package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Webhook Signature & Events (SIG / EVT) ----

func ErrSignatureInvalid() *AppError {
	return New("SIG_001", "Webhook signature verification failed", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SIG_002", "Webhook timestamp outside tolerance window", http.StatusUnauthorized)
}

func ErrMalformedEvent(err error) *AppError {
	return Wrap("EVT_001", "Malformed webhook event payload", http.StatusBadRequest, err)
}

// ---- Fulfillment State Machine (JOB) ----

func ErrStateConflict() *AppError {
	return New("JOB_001", "Job state changed concurrently, transition discarded", http.StatusConflict)
}

func ErrJobNotFound() *AppError {
	return New("JOB_002", "Job not found", http.StatusNotFound)
}

func ErrJobNotReviewable() *AppError {
	return New("JOB_003", "Job is not awaiting review", http.StatusConflict)
}

// ---- Collaborator Failures (GEN / PUB) ----

func ErrGenerationTransient(err error) *AppError {
	return Wrap("GEN_001", "Content generation failed transiently", http.StatusBadGateway, err)
}

func ErrGenerationValidation(err error) *AppError {
	return Wrap("GEN_002", "Content generation rejected the request parameters", http.StatusUnprocessableEntity, err)
}

func ErrPublishTransient(err error) *AppError {
	return Wrap("PUB_001", "Publishing failed transiently", http.StatusBadGateway, err)
}

func ErrPublishValidation(err error) *AppError {
	return Wrap("PUB_002", "Publishing rejected the artifact", http.StatusUnprocessableEntity, err)
}

// ---- Retry Policy (RTY) ----

func ErrNotRetryable() *AppError {
	return New("RTY_001", "Job is not eligible for retry", http.StatusConflict)
}

func ErrMaxAttemptsExceeded() *AppError {
	return New("RTY_002", "Job has exhausted its retry attempts", http.StatusConflict)
}

// ---- Orders (ORD) ----

func ErrOrderNotFound() *AppError {
	return New("ORD_001", "Order not found", http.StatusNotFound)
}

// ---- Operator Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
