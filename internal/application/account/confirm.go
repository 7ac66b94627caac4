package account

import (
	"context"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

type ConfirmResult struct {
	User    domain.User
	Session *AuthSession
}

// ConfirmRegistration enables the account owning a valid verification token
// and consumes the token. Validation, enablement and consumption share one
// transaction, so a concurrent purge either wins (TokenInvalid/TokenExpired)
// or loses entirely.
func (s *Service) ConfirmRegistration(ctx context.Context, token string) (ConfirmResult, error) {
	var enabled domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		status, tok, err := s.tokens.Validate(ctx, token, domain.TokenVerification)
		if err != nil {
			return err
		}
		if err := status.Err(); err != nil {
			return err
		}

		u, err := s.users.FindByID(ctx, tok.UserID)
		if err != nil {
			return err
		}
		if u.State() == domain.StateDisabled {
			return domain.ErrAccountDisabled()
		}
		u.Enabled = true
		u.UpdatedAt = s.now()
		enabled, err = s.users.Update(ctx, u)
		if err != nil {
			return err
		}

		return s.tokens.Consume(ctx, token, domain.TokenVerification)
	})
	if err != nil {
		s.record(ctx, domain.ActionRegistrationConfirm, domain.OutcomeFailure, "", nil, failureMessage(err))
		return ConfirmResult{}, err
	}

	res := ConfirmResult{User: enabled}
	sess, err := s.AuthWithoutPassword(ctx, enabled)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("user_id", enabled.ID).Msg("post-confirmation login failed")
		s.record(ctx, domain.ActionRegistrationConfirm, domain.OutcomeSuccess, enabled.ID, domain.SnapshotOf(enabled), "Registration Confirmed")
		return res, nil
	}
	res.Session = &sess
	s.record(ctx, domain.ActionRegistrationConfirm, domain.OutcomeSuccess, enabled.ID, domain.SnapshotOf(enabled), "Registration Confirmed. User logged in.")
	return res, nil
}
