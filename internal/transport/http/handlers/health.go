package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/account-service/internal/transport/http/response"
)

// Pinger is a dependency readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	deps map[string]Pinger
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			failed[name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		response.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"checks": failed,
		})
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
