package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"sketchgen/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: string(code), Message: msg}})
}

// fail renders err with the status its code maps to. Errors that are not *domain.Error
// are logged and reported as 500 without detail.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		a.logger(r).Error().Err(err).Msg("http: unhandled error")
		a.error(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	status := statusFor(de.Code)
	if de.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(de.RetryAfterSeconds, 10))
	}
	if status >= http.StatusInternalServerError {
		a.logger(r).Warn().Err(err).Str("code", string(de.Code)).Msg("http: request failed")
	}
	a.error(w, status, de.Code, de.Message)
}

func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeMissingRequiredFields,
		domain.CodeInvalidImageData,
		domain.CodeInvalidImageEncoding,
		domain.CodeUnsupportedImageType,
		domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeAssetNotFound, domain.CodeJobNotFound:
		return http.StatusNotFound
	case domain.CodeJobInFlight:
		return http.StatusConflict
	case domain.CodeQuotaNearlyExceeded, domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeServiceTemporarilyUnavailable, domain.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
