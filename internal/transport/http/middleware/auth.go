package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/infrastructure/security"
	appCtx "github.com/baechuer/account-service/internal/pkg/context"
)

type TokenVerifier interface {
	VerifyAccessToken(token string) (security.AccessClaims, error)
}

// SessionReader confirms the session named by a token is still live.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (account.SessionProfile, error)
}

type WriteErrFunc func(http.ResponseWriter, *http.Request, error)

// Auth verifies Authorization: Bearer <access_token> and puts the Principal on
// the request context. When sessions is set, a token whose session is gone
// (logged out, account removed) is rejected.
func Auth(verifier TokenVerifier, sessions SessionReader, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				writeErr(w, r, domain.ErrNotAuthenticated())
				return
			}

			scheme, raw, ok := strings.Cut(h, " ")
			raw = strings.TrimSpace(raw)
			if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				writeErr(w, r, domain.ErrTokenInvalid())
				return
			}

			claims, err := verifier.VerifyAccessToken(raw)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			if sessions != nil {
				if _, err := sessions.Get(r.Context(), claims.SessionID); err != nil {
					if domain.Is(err, "session_not_found") {
						err = domain.ErrNotAuthenticated()
					}
					writeErr(w, r, err)
					return
				}
			}

			p := account.Principal{
				UserID:    claims.UserID,
				Email:     claims.Email,
				SessionID: claims.SessionID,
			}
			ctx := WithPrincipal(r.Context(), p, claims.Roles)

			c := appCtx.GetClient(ctx)
			c.SessionID = claims.SessionID
			ctx = appCtx.WithClient(ctx, c)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
