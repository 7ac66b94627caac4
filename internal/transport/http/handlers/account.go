package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
	"github.com/baechuer/account-service/internal/transport/http/dto"
	"github.com/baechuer/account-service/internal/transport/http/middleware"
	"github.com/baechuer/account-service/internal/transport/http/response"
)

type AccountHandler struct {
	svc      *account.Service
	validate *dto.Validator
}

func NewAccountHandler(svc *account.Service, v *dto.Validator) *AccountHandler {
	return &AccountHandler{svc: svc, validate: v}
}

// bind decodes and validates the body; on failure the error response has
// already been written.
func (h *AccountHandler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := response.DecodeJSON(w, r, dst); err != nil {
		response.WriteError(w, r, err)
		return false
	}
	if err := h.validate.Validate(dst); err != nil {
		response.WriteError(w, r, err)
		return false
	}
	return true
}

func principal(w http.ResponseWriter, r *http.Request) (account.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.WriteError(w, r, domain.ErrNotAuthenticated())
	}
	return p, ok
}

// POST /register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.svc.Register(r.Context(), account.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	logger.WithCtx(r.Context()).Info().
		Str("user_id", res.User.ID).
		Bool("enabled", res.User.Enabled).
		Msg("user_registered")

	response.Created(w, dto.NewAccountData(res.User, res.Session))
}

// GET /registration/confirm?token=
func (h *AccountHandler) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		response.WriteError(w, r, domain.ErrMissingField("token"))
		return
	}

	res, err := h.svc.ConfirmRegistration(r.Context(), token)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.NewAccountData(res.User, res.Session))
}

// POST /registration/resend
func (h *AccountHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Accepted(w, dto.MessageView{Message: "if the account is pending, a verification email has been sent"})
}

// POST /login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !h.bind(w, r, &req) {
		return
	}

	sess, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.LoginAttemptsTotal.WithLabelValues(loginStatus(err)).Inc()
		response.WriteError(w, r, err)
		return
	}
	middleware.LoginAttemptsTotal.WithLabelValues("success").Inc()

	logger.WithCtx(r.Context()).Info().
		Str("user_id", sess.User.ID).
		Msg("user_logged_in")

	response.OK(w, dto.NewAccountData(sess.User, &sess))
}

func loginStatus(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}

// POST /password/reset/request
func (h *AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.Accepted(w, dto.MessageView{Message: "if the account exists, a reset email has been sent"})
}

// GET /password/reset/validate?token=
func (h *AccountHandler) ValidatePasswordResetToken(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.ValidatePasswordResetToken(r.Context(), strings.TrimSpace(r.URL.Query().Get("token")))
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.TokenStatusView{Status: string(status)})
}

// POST /password/reset/confirm
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.NoContent(w)
}

// POST /password/change
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req dto.ChangePasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), p, req.OldPassword, req.NewPassword); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.NoContent(w)
}

// GET /me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	prof, err := h.svc.Profile(r.Context(), p)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, prof)
}

// PATCH /me
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if !h.bind(w, r, &req) {
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), p, account.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.NewUserView(u))
}

// DELETE /me
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteOrDisable(r.Context(), p); err != nil {
		response.WriteError(w, r, err)
		return
	}
	logger.WithCtx(r.Context()).Info().Str("user_id", p.UserID).Msg("account_removed")
	response.NoContent(w)
}
