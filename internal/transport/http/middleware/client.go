package middleware

import (
	"net"
	"net/http"
	"strings"

	appCtx "github.com/baechuer/account-service/internal/pkg/context"
)

// ClientMeta attaches the caller's address and user agent to the request
// context so audit events can carry them.
func ClientMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := appCtx.GetClient(r.Context())
		c.IP = clientIP(r)
		c.UserAgent = r.UserAgent()
		next.ServeHTTP(w, r.WithContext(appCtx.WithClient(r.Context(), c)))
	})
}

// clientIP trusts the first X-Forwarded-For hop; deploy behind a proxy that
// overwrites it.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
