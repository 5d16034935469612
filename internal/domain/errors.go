package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrJobInFlight        = errors.New("job already in flight for asset")
	ErrNoJobAvailable     = errors.New("no job available")
	ErrInvalidTransition  = errors.New("invalid asset status transition")
	ErrConcurrentUpdate   = errors.New("asset status changed concurrently")
	ErrDuplicateOperation = errors.New("duplicate operation")
)

// ErrorCode is the stable machine-readable code surfaced to callers.
type ErrorCode string

const (
	// admission
	CodeMissingRequiredFields         ErrorCode = "MISSING_REQUIRED_FIELDS"
	CodeInvalidImageData              ErrorCode = "INVALID_IMAGE_DATA"
	CodeUnsupportedImageType          ErrorCode = "UNSUPPORTED_IMAGE_TYPE"
	CodeInvalidImageEncoding          ErrorCode = "INVALID_IMAGE_ENCODING"
	CodeServiceTemporarilyUnavailable ErrorCode = "SERVICE_TEMPORARILY_UNAVAILABLE"
	CodeQuotaNearlyExceeded           ErrorCode = "QUOTA_NEARLY_EXCEEDED"
	CodeServiceUnavailable            ErrorCode = "SERVICE_UNAVAILABLE"

	// moderation
	CodeInputRejected  ErrorCode = "INPUT_REJECTED"
	CodeOutputRejected ErrorCode = "OUTPUT_REJECTED"

	// providers
	CodeNoProviderAvailable ErrorCode = "NO_PROVIDER_AVAILABLE"
	CodeNoAPIKey            ErrorCode = "NO_API_KEY"
	CodeProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	CodeProviderNetwork     ErrorCode = "PROVIDER_NETWORK_ERROR"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeAuthFailed          ErrorCode = "AUTH_FAILED"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	CodeQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	CodeContentPolicy       ErrorCode = "CONTENT_POLICY_VIOLATION"
	CodeGenerationFailed    ErrorCode = "GENERATION_FAILED"

	// pipeline / lookup
	CodeUploadFailed  ErrorCode = "UPLOAD_FAILED"
	CodeJobCancelled  ErrorCode = "JOB_CANCELLED"
	CodeJobInFlight   ErrorCode = "JOB_IN_FLIGHT"
	CodeAssetNotFound ErrorCode = "ASSET_NOT_FOUND"
	CodeJobNotFound   ErrorCode = "JOB_NOT_FOUND"
)

// Error is the normalized error that crosses component boundaries.
type Error struct {
	Code              ErrorCode
	Message           string
	Retryable         bool
	RetryAfterSeconds int64
	Err               error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a non-retryable error.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WrapError builds an error around cause.
func WrapError(code ErrorCode, msg string, retryable bool, cause error) *Error {
	return &Error{Code: code, Message: msg, Retryable: retryable, Err: cause}
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or fallback when err is not normalized.
func CodeOf(err error, fallback ErrorCode) ErrorCode {
	if de, ok := AsError(err); ok {
		return de.Code
	}
	return fallback
}
