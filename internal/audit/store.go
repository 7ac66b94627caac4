package audit

import (
	"context"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

// Appender persists audit events. Implemented by the memory and postgres
// audit repositories.
type Appender interface {
	Append(ctx context.Context, evt domain.AuditEvent) error
}

type StoreSubscriber struct {
	store   Appender
	timeout time.Duration
}

func NewStoreSubscriber(store Appender, timeout time.Duration) *StoreSubscriber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &StoreSubscriber{store: store, timeout: timeout}
}

func (s *StoreSubscriber) Handle(ctx context.Context, evt domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Append(ctx, evt)
}
