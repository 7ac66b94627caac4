package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/account-service/internal/domain"
	appCtx "github.com/baechuer/account-service/internal/pkg/context"
)

type decodeDst struct {
	A string `json:"a"`
	B int    `json:"b"`
}

func decodeBody(t *testing.T, body string, dst any) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
	return DecodeJSON(httptest.NewRecorder(), req, dst)
}

func TestDecodeJSON(t *testing.T) {
	var dst decodeDst
	require.NoError(t, decodeBody(t, `{"a":"x","b":1}`, &dst))
	assert.Equal(t, decodeDst{A: "x", B: 1}, dst)

	cases := map[string]string{
		"unknown field": `{"a":"x","c":"oops"}`,
		"truncated":     `{"a":"x",`,
		"two values":    `{}{}`,
		"empty":         ``,
		"too large":     `{"a":"` + strings.Repeat("x", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var d decodeDst
			err := decodeBody(t, body, &d)
			assert.True(t, domain.Is(err, "invalid_json"), "got %v", err)
		})
	}
}

func TestWriteError_DomainError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(appCtx.WithRequestID(req.Context(), "req-123"))
	rr := httptest.NewRecorder()

	WriteError(rr, req, domain.ErrMissingField("email"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "missing_field", body.Error.Code)
	assert.Equal(t, "email", body.Error.Meta["field"])
	assert.Equal(t, "req-123", body.Error.RequestID)
}

func TestWriteError_HidesCauses(t *testing.T) {
	for _, err := range []error{
		errors.New("pq: connection refused"),
		domain.ErrDBUnavailable(errors.New("dial tcp 10.0.0.5:5432")),
	} {
		rr := httptest.NewRecorder()
		WriteError(rr, httptest.NewRequest(http.MethodGet, "/x", nil), err)
		assert.NotContains(t, rr.Body.String(), "10.0.0.5")
		assert.NotContains(t, rr.Body.String(), "pq:")
	}
}

func TestWriteError_RetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodPost, "/x", nil), domain.ErrRateLimited("ip"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodPost, "/x", nil), domain.ErrDBUnavailable(errors.New("down")))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "5", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodPost, "/x", nil), errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get("Retry-After"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Error.Code)
}

func TestStatusFromKind(t *testing.T) {
	cases := map[domain.ErrKind]int{
		domain.KindValidation:     http.StatusBadRequest,
		domain.KindAuth:           http.StatusUnauthorized,
		domain.KindForbidden:      http.StatusForbidden,
		domain.KindNotFound:       http.StatusNotFound,
		domain.KindConflict:       http.StatusConflict,
		domain.KindRateLimited:    http.StatusTooManyRequests,
		domain.KindInfrastructure: http.StatusServiceUnavailable,
		domain.KindInternal:       http.StatusInternalServerError,
		"unknown":                 http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFromKind(kind), string(kind))
	}
}

func TestSuccessEnvelopes(t *testing.T) {
	rr := httptest.NewRecorder()
	Created(rr, map[string]string{"id": "u1"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"data":{"id":"u1"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	NoContent(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}
