package middleware

import (
	"context"

	"github.com/baechuer/account-service/internal/application/account"
)

type ctxKey string

const (
	ctxPrincipal ctxKey = "principal"
	ctxRoles     ctxKey = "roles"
)

func WithPrincipal(ctx context.Context, p account.Principal, roles []string) context.Context {
	ctx = context.WithValue(ctx, ctxPrincipal, p)
	return context.WithValue(ctx, ctxRoles, roles)
}

func PrincipalFromContext(ctx context.Context) (account.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(account.Principal)
	return p, ok && p.UserID != ""
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(ctxRoles).([]string)
	return roles
}
