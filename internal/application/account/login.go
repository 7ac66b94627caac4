package account

import (
	"context"

	"github.com/baechuer/account-service/internal/domain"
)

// Authenticate is the password login path. It consults and updates the
// lockout engine; a locked account is refused even with the right password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (AuthSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthSession{}, domain.ErrInvalidCredentials()
	}

	locked, err := s.lockout.IsLocked(ctx, email)
	if err != nil {
		return AuthSession{}, err
	}
	if locked {
		s.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, "", nil, "account locked")
		return AuthSession{}, domain.ErrAccountLocked()
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil && !isNotFound(err) {
		s.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, "", nil, failureMessage(err))
		return AuthSession{}, err
	}
	if err != nil || s.hasher.Compare(u.PasswordHash, password) != nil {
		if lerr := s.lockout.LoginFailed(ctx, email); lerr != nil {
			return AuthSession{}, lerr
		}
		return AuthSession{}, domain.ErrInvalidCredentials()
	}

	// Checked after the password so disabled accounts are not enumerable.
	if !u.Enabled {
		s.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, "", domain.SnapshotOf(u), "account not enabled")
		return AuthSession{}, domain.ErrAccountDisabled()
	}

	if err := s.lockout.LoginSucceeded(ctx, email); err != nil {
		return AuthSession{}, err
	}
	return s.AuthWithoutPassword(ctx, u)
}
