package memory

import (
	"context"
	"sync"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/logger"
)

// Dispatcher logs emails instead of delivering them and keeps the last ones
// around for dev tooling and tests.
type Dispatcher struct {
	mu            sync.Mutex
	verifications []account.VerificationEmail
	resets        []account.PasswordResetEmail
}

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

func (d *Dispatcher) SendVerification(ctx context.Context, msg account.VerificationEmail) error {
	logger.WithCtx(ctx).Info().
		Str("user_id", msg.UserID).
		Str("url", msg.URL).
		Msg("[noop-mail] verification email")

	d.mu.Lock()
	d.verifications = append(d.verifications, msg)
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, msg account.PasswordResetEmail) error {
	logger.WithCtx(ctx).Info().
		Str("user_id", msg.UserID).
		Str("url", msg.URL).
		Msg("[noop-mail] password reset email")

	d.mu.Lock()
	d.resets = append(d.resets, msg)
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) Verifications() []account.VerificationEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]account.VerificationEmail(nil), d.verifications...)
}

func (d *Dispatcher) Resets() []account.PasswordResetEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]account.PasswordResetEmail(nil), d.resets...)
}
