package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
	appCtx "github.com/baechuer/account-service/internal/pkg/context"
)

type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

var kindStatus = map[domain.ErrKind]int{
	domain.KindValidation:     http.StatusBadRequest,
	domain.KindAuth:           http.StatusUnauthorized,
	domain.KindForbidden:      http.StatusForbidden,
	domain.KindNotFound:       http.StatusNotFound,
	domain.KindConflict:       http.StatusConflict,
	domain.KindRateLimited:    http.StatusTooManyRequests,
	domain.KindInfrastructure: http.StatusServiceUnavailable,
	domain.KindInternal:       http.StatusInternalServerError,
}

// seconds a client should wait before retrying, per kind
var retryAfter = map[domain.ErrKind]int{
	domain.KindRateLimited:    60,
	domain.KindInfrastructure: 5,
}

var internalPayload = ErrorPayload{Code: "internal_error", Message: "internal error"}

func statusFromKind(kind domain.ErrKind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// describe turns err into what the client is allowed to see. Causes never
// leave the process; non-domain errors collapse into internal_error.
func describe(err error) (domain.ErrKind, ErrorPayload) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return domain.KindInternal, internalPayload
	}
	return de.Kind, ErrorPayload{Code: de.Code, Message: de.Message, Meta: de.Meta}
}

// WriteError renders err as the {"error": ...} envelope. System errors are
// logged here with their cause, once per request.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind, payload := describe(err)
	payload.RequestID = appCtx.GetRequestID(r.Context())
	status := statusFromKind(kind)

	if domain.IsSystemError(err) {
		logger.WithCtx(r.Context()).Error().Err(err).
			Str("code", payload.Code).
			Str("route", r.Method+" "+r.URL.Path).
			Int("status", status).
			Msg("request failed")
	}

	// a limiter upstream may already know the exact wait
	if secs, ok := retryAfter[kind]; ok && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	WriteJSON(w, status, ErrorBody{Error: payload})
}
