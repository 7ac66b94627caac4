package memory

import (
	"context"

	"github.com/baechuer/account-service/internal/domain"
)

// AuditRepo is the append-only audit sink used when no database is configured.
type AuditRepo struct{ s *Store }

func (r *AuditRepo) Append(ctx context.Context, evt domain.AuditEvent) error {
	defer r.s.lock(ctx)()

	if evt.Subject != nil {
		snap := *evt.Subject
		evt.Subject = &snap
	}
	r.s.audit = append(r.s.audit, evt)
	return nil
}

// List returns a copy of all recorded events in append order.
func (r *AuditRepo) List(ctx context.Context) []domain.AuditEvent {
	defer r.s.lock(ctx)()

	out := make([]domain.AuditEvent, len(r.s.audit))
	copy(out, r.s.audit)
	return out
}
