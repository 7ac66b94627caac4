package router

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/transport/http/middleware"
	"github.com/baechuer/account-service/internal/transport/http/response"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type AccountHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	ConfirmRegistration(w http.ResponseWriter, r *http.Request)
	ResendVerification(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)

	RequestPasswordReset(w http.ResponseWriter, r *http.Request)
	ValidatePasswordResetToken(w http.ResponseWriter, r *http.Request)
	ResetPassword(w http.ResponseWriter, r *http.Request)
	ChangePassword(w http.ResponseWriter, r *http.Request)

	Me(w http.ResponseWriter, r *http.Request)
	UpdateProfile(w http.ResponseWriter, r *http.Request)
	DeleteAccount(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Health  HealthHandler
	Account AccountHandler

	AuthMW func(http.Handler) http.Handler

	// RateLimitPerMin caps unauthenticated mutations per client IP.
	// Zero disables the limiter.
	RateLimitPerMin int

	// HSTS adds Strict-Transport-Security to every response.
	HSTS bool
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, errors.New("nil Health handler")
	}
	if deps.Account == nil {
		return nil, errors.New("nil Account handler")
	}
	if deps.AuthMW == nil {
		return nil, errors.New("nil Auth middleware")
	}

	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimitPerMin > 0 {
		limit = httprate.Limit(
			deps.RateLimitPerMin,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByRealIP, httprate.KeyByEndpoint),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				response.WriteError(w, r, domain.ErrRateLimited("ip"))
			}),
		)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(deps.HSTS))
	r.Use(middleware.ClientMeta)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog)

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	a := deps.Account
	r.Route("/account/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/register", a.Register)
			r.Post("/registration/resend", a.ResendVerification)
			r.Post("/login", a.Login)
			r.Post("/password/reset/request", a.RequestPasswordReset)
			r.Post("/password/reset/confirm", a.ResetPassword)
		})

		r.Get("/registration/confirm", a.ConfirmRegistration) // ?token=
		r.Get("/password/reset/validate", a.ValidatePasswordResetToken)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMW)
			r.Post("/password/change", a.ChangePassword)
			r.Get("/me", a.Me)
			r.Patch("/me", a.UpdateProfile)
			r.Delete("/me", a.DeleteAccount)
		})
	})

	return r, nil
}
