package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/infrastructure/memory"
	"github.com/baechuer/account-service/internal/infrastructure/security"
	"github.com/baechuer/account-service/internal/transport/http/dto"
	"github.com/baechuer/account-service/internal/transport/http/handlers"
	"github.com/baechuer/account-service/internal/transport/http/middleware"
	"github.com/baechuer/account-service/internal/transport/http/response"
	"github.com/baechuer/account-service/internal/transport/http/router"
)

type testServer struct {
	h      http.Handler
	mailer *memory.Dispatcher
}

func newServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()

	store := memory.NewStore()
	store.SeedRoles()
	sessions := memory.NewSessionStore()
	mailer := memory.NewDispatcher()
	signer := security.NewJWTSigner("0123456789abcdef", "account-service")

	svc := account.NewService(account.Deps{
		Tx:       store,
		Users:    store.Users(),
		Roles:    store.Roles(),
		Tokens:   account.NewTokenManager(store, store.Tokens(), nil, account.TokenConfig{}),
		Lockout:  account.NewLockoutEngine(store, store.Users(), nil, nil, account.LockoutConfig{Threshold: 3, Duration: time.Minute}),
		Hasher:   security.NewBcryptHasher(4),
		Signer:   signer,
		Sessions: sessions,
		Mailer:   mailer,
	}, account.Config{
		VerifyEmailBaseURL:   "https://app.test/registration/confirm?token=",
		PasswordResetBaseURL: "https://app.test/password/reset?token=",
	})

	v, err := dto.NewValidator()
	require.NoError(t, err)

	h, err := router.New(router.Deps{
		Health:          handlers.NewHealthHandler(nil),
		Account:         handlers.NewAccountHandler(svc, v),
		AuthMW:          middleware.Auth(signer, sessions, response.WriteError),
		RateLimitPerMin: rateLimit,
	})
	require.NoError(t, err)
	return &testServer{h: h, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data  json.RawMessage       `json:"data"`
	Error *response.ErrorPayload `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	if dst != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
	return env
}

func errCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, rr, nil)
	require.NotNil(t, env.Error, rr.Body.String())
	return env.Error.Code
}

func tokenFrom(url string) string {
	_, tok, _ := strings.Cut(url, "token=")
	return tok
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := router.New(router.Deps{})
	assert.Error(t, err)
}

func TestAccountLifecycle(t *testing.T) {
	s := newServer(t, 0)
	creds := map[string]string{"email": "Ada@Example.com", "password": "Secret123"}

	rr := s.do(t, http.MethodPost, "/account/v1/register", "", map[string]string{
		"email": "Ada@Example.com", "password": "Secret123", "first_name": "Ada",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var reg dto.AccountData
	decode(t, rr, &reg)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.False(t, reg.User.Enabled)
	assert.Nil(t, reg.Tokens)

	rr = s.do(t, http.MethodPost, "/account/v1/register", "", map[string]string{"email": "ada@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "email_already_exists", errCode(t, rr))

	rr = s.do(t, http.MethodPost, "/account/v1/login", "", creds)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "account_disabled", errCode(t, rr))

	require.Len(t, s.mailer.Verifications(), 1)
	verify := tokenFrom(s.mailer.Verifications()[0].URL)

	rr = s.do(t, http.MethodGet, "/account/v1/registration/confirm?token="+verify, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var confirmed dto.AccountData
	decode(t, rr, &confirmed)
	assert.True(t, confirmed.User.Enabled)
	require.NotNil(t, confirmed.Tokens)

	rr = s.do(t, http.MethodGet, "/account/v1/registration/confirm?token="+verify, "", nil)
	assert.Equal(t, "token_invalid", errCode(t, rr))

	rr = s.do(t, http.MethodPost, "/account/v1/login", "", creds)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var login dto.AccountData
	decode(t, rr, &login)
	require.NotNil(t, login.Tokens)
	assert.Equal(t, "Bearer", login.Tokens.TokenType)
	access := login.Tokens.AccessToken

	rr = s.do(t, http.MethodGet, "/account/v1/me", access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var prof account.SessionProfile
	decode(t, rr, &prof)
	assert.Equal(t, "ada@example.com", prof.Email)
	assert.Equal(t, []string{"ROLE_USER"}, prof.Roles)

	rr = s.do(t, http.MethodPatch, "/account/v1/me", access, map[string]string{"first_name": "Augusta", "last_name": "King"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = s.do(t, http.MethodGet, "/account/v1/me", access, nil)
	decode(t, rr, &prof)
	assert.Equal(t, "Augusta", prof.FirstName)

	rr = s.do(t, http.MethodPost, "/account/v1/password/change", access, map[string]string{"old_password": "wrong", "new_password": "Secret456"})
	assert.Equal(t, "invalid_old_credential", errCode(t, rr))
	rr = s.do(t, http.MethodPost, "/account/v1/password/change", access, map[string]string{"old_password": "Secret123", "new_password": "Secret456"})
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodDelete, "/account/v1/me", access, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodGet, "/account/v1/me", access, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodPost, "/account/v1/login", "", map[string]string{"email": "ada@example.com", "password": "Secret456"})
	assert.Equal(t, "account_disabled", errCode(t, rr))
}

func TestPasswordResetFlow(t *testing.T) {
	s := newServer(t, 0)

	rr := s.do(t, http.MethodPost, "/account/v1/password/reset/request", "", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, s.mailer.Resets())

	s.do(t, http.MethodPost, "/account/v1/register", "", map[string]string{"email": "bob@example.com", "password": "Secret123"})
	rr = s.do(t, http.MethodPost, "/account/v1/password/reset/request", "", map[string]string{"email": "bob@example.com"})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, s.mailer.Resets(), 1)
	tok := tokenFrom(s.mailer.Resets()[0].URL)

	var status dto.TokenStatusView
	decode(t, s.do(t, http.MethodGet, "/account/v1/password/reset/validate?token=nope", "", nil), &status)
	assert.Equal(t, "INVALID", status.Status)
	decode(t, s.do(t, http.MethodGet, "/account/v1/password/reset/validate?token="+tok, "", nil), &status)
	assert.Equal(t, "VALID", status.Status)

	rr = s.do(t, http.MethodPost, "/account/v1/password/reset/confirm", "", map[string]string{"token": tok, "new_password": "weak"})
	assert.Equal(t, "weak_password", errCode(t, rr))

	rr = s.do(t, http.MethodPost, "/account/v1/password/reset/confirm", "", map[string]string{"token": tok, "new_password": "Better123"})
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPost, "/account/v1/password/reset/confirm", "", map[string]string{"token": tok, "new_password": "Better123"})
	assert.Equal(t, "token_invalid", errCode(t, rr))
}

func TestRequestErrors(t *testing.T) {
	s := newServer(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/account/v1/login", strings.NewReader(`{"email":`))
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decode(t, rr, nil)
	assert.Equal(t, "invalid_json", env.Error.Code)
	assert.NotEmpty(t, env.Error.RequestID)
	assert.Equal(t, env.Error.RequestID, rr.Header().Get(middleware.HeaderXRequestID))

	rr = s.do(t, http.MethodPost, "/account/v1/register", "", map[string]string{"email": "not-an-email", "password": "Secret123"})
	assert.Equal(t, "invalid_field", errCode(t, rr))

	rr = s.do(t, http.MethodGet, "/account/v1/registration/confirm", "", nil)
	assert.Equal(t, "missing_field", errCode(t, rr))

	rr = s.do(t, http.MethodGet, "/account/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "not_authenticated", errCode(t, rr))

	rr = s.do(t, http.MethodPost, "/account/v1/registration/resend", "", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newServer(t, 0)
	s.do(t, http.MethodPost, "/account/v1/register", "", map[string]string{"email": "eve@example.com", "password": "Secret123"})

	bad := map[string]string{"email": "eve@example.com", "password": "Wrong1234"}
	for i := 0; i < 3; i++ {
		assert.Equal(t, "invalid_credentials", errCode(t, s.do(t, http.MethodPost, "/account/v1/login", "", bad)))
	}
	rr := s.do(t, http.MethodPost, "/account/v1/login", "", map[string]string{"email": "eve@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "account_locked", errCode(t, rr))
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, 2)
	body := map[string]string{"email": "x@example.com", "password": "Secret123"}

	for i := 0; i < 2; i++ {
		rr := s.do(t, http.MethodPost, "/account/v1/login", "", body)
		assert.NotEqual(t, http.StatusTooManyRequests, rr.Code)
	}
	rr := s.do(t, http.MethodPost, "/account/v1/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", errCode(t, rr))

	// confirm is not rate limited
	rr = s.do(t, http.MethodGet, "/account/v1/registration/confirm?token=x", "", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, rr.Code)
}

func TestOpsEndpoints(t *testing.T) {
	s := newServer(t, 0)

	rr := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	s.do(t, http.MethodPost, "/account/v1/login", "", map[string]string{"email": "x@example.com", "password": "p"})
	rr = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "account_service_http_requests_total")
	assert.Contains(t, rr.Body.String(), "account_service_login_attempts_total")
}
