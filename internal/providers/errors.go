package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"sketchgen/internal/domain"
)

// Kind is the closed classification of provider failures. It is assigned once, where a
// client turns a transport or API failure into an *Error.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindServer         Kind = "server"
	KindAuth           Kind = "auth"
	KindInvalidRequest Kind = "invalid_request"
	KindQuota          Kind = "quota"
	KindContentPolicy  Kind = "content_policy"
	KindNoAPIKey       Kind = "no_api_key"
	KindNoProvider     Kind = "no_provider"
	KindUnknown        Kind = "unknown"
)

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// Code maps the kind onto the caller-visible error code.
func (k Kind) Code() domain.ErrorCode {
	switch k {
	case KindNetwork:
		return domain.CodeProviderNetwork
	case KindTimeout:
		return domain.CodeProviderTimeout
	case KindRateLimited:
		return domain.CodeRateLimited
	case KindServer:
		return domain.CodeProviderUnavailable
	case KindAuth:
		return domain.CodeAuthFailed
	case KindInvalidRequest:
		return domain.CodeInvalidRequest
	case KindQuota:
		return domain.CodeQuotaExceeded
	case KindContentPolicy:
		return domain.CodeContentPolicy
	case KindNoAPIKey:
		return domain.CodeNoAPIKey
	case KindNoProvider:
		return domain.CodeNoProviderAvailable
	default:
		return domain.CodeGenerationFailed
	}
}

// SuggestedAction is a short operator hint for the kind.
func (k Kind) SuggestedAction() string {
	switch k {
	case KindNetwork, KindServer:
		return "retry later or configure a fallback provider"
	case KindTimeout:
		return "retry later; consider raising PROVIDER_API_TIMEOUT_MS"
	case KindRateLimited:
		return "reduce request rate or lower RATE_LIMIT_MAX"
	case KindAuth, KindNoAPIKey:
		return "check the provider API key"
	case KindQuota:
		return "check the provider account quota and billing"
	case KindInvalidRequest:
		return "check prompt, image and quality parameters"
	case KindContentPolicy:
		return "revise the prompt or source image"
	case KindNoProvider:
		return "configure a provider that supports the request"
	default:
		return "inspect provider logs"
	}
}

// Error is the normalized provider failure.
type Error struct {
	Kind            Kind
	Code            domain.ErrorCode
	Message         string
	Provider        ID
	Retryable       bool
	SuggestedAction string
	StatusCode      int
	Err             error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Domain converts the provider error into the cross-component error type.
func (e *Error) Domain() *domain.Error {
	return &domain.Error{Code: e.Code, Message: e.Message, Retryable: e.Retryable, Err: e}
}

// NewError builds an error whose code, retryability and hint derive from kind.
func NewError(provider ID, kind Kind, message string) *Error {
	return &Error{
		Kind:            kind,
		Code:            kind.Code(),
		Message:         message,
		Provider:        provider,
		Retryable:       kind.Retryable(),
		SuggestedAction: kind.SuggestedAction(),
	}
}

// Errorf is NewError with formatting.
func Errorf(provider ID, kind Kind, format string, args ...any) *Error {
	return NewError(provider, kind, fmt.Sprintf(format, args...))
}

// KindForStatus classifies an HTTP status code.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// FromStatus builds an error for a non-success HTTP response.
func FromStatus(provider ID, status int, message string) *Error {
	e := NewError(provider, KindForStatus(status), message)
	e.StatusCode = status
	return e
}

// FromTransport classifies an error returned before any HTTP status was read. A deadline
// is a timeout; a caller cancellation is not retryable; everything else is a network
// failure.
func FromTransport(provider ID, err error) *Error {
	var kind Kind
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindUnknown
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	default:
		kind = KindNetwork
	}
	e := NewError(provider, kind, err.Error())
	e.Err = err
	return e
}

// AsError extracts a provider error from err. Anything else is reported as an unknown,
// non-retryable failure attributed to provider.
func AsError(provider ID, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	e := NewError(provider, KindUnknown, err.Error())
	e.Err = err
	return e
}
