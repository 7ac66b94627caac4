package account

import (
	"context"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

// RequestPasswordReset issues a reset token and emails it. The caller sees the
// same result whether or not the identity exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return domain.ErrMissingField("email")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		s.record(ctx, domain.ActionResetRequest, domain.OutcomeFailure, "", nil, failureMessage(err))
		return err
	}

	tok, err := s.tokens.Issue(ctx, u.ID, domain.TokenPasswordReset)
	if err != nil {
		s.record(ctx, domain.ActionResetRequest, domain.OutcomeFailure, "", domain.SnapshotOf(u), failureMessage(err))
		return err
	}

	err = s.mailer.SendPasswordReset(ctx, PasswordResetEmail{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		URL:       s.cfg.PasswordResetBaseURL + tok.Token,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		// Surfacing this would reveal that the identity exists.
		logger.WithCtx(ctx).Error().Err(err).Str("user_id", u.ID).Msg("password reset email not dispatched")
		s.record(ctx, domain.ActionResetRequest, domain.OutcomeFailure, "", domain.SnapshotOf(u), "password reset email not dispatched")
		return nil
	}

	s.record(ctx, domain.ActionResetRequest, domain.OutcomeSuccess, "", domain.SnapshotOf(u), "Password reset email sent")
	return nil
}

// ValidatePasswordResetToken checks a reset token without consuming it.
func (s *Service) ValidatePasswordResetToken(ctx context.Context, token string) (TokenStatus, error) {
	status, _, err := s.tokens.Validate(ctx, token, domain.TokenPasswordReset)
	if err != nil {
		s.record(ctx, domain.ActionValidateResetToken, domain.OutcomeFailure, "", nil, failureMessage(err))
		return TokenInvalid, err
	}

	outcome := domain.OutcomeSuccess
	if status != TokenValid {
		outcome = domain.OutcomeFailure
	}
	s.record(ctx, domain.ActionValidateResetToken, outcome, "", nil, "Token validation result: "+string(status))
	return status, nil
}

// ResetPassword sets a new credential for the owner of a valid reset token and
// consumes the token. A successful reset also clears any lockout.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return domain.ErrMissingField("password")
	}

	var updated domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		status, tok, err := s.tokens.Validate(ctx, token, domain.TokenPasswordReset)
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
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return systemError(err)
		}
		u.PasswordHash = hash
		u.ResetLockout()
		u.UpdatedAt = s.now()
		updated, err = s.users.Update(ctx, u)
		if err != nil {
			return err
		}
		return s.tokens.Consume(ctx, token, domain.TokenPasswordReset)
	})
	if err != nil {
		s.record(ctx, domain.ActionPasswordReset, domain.OutcomeFailure, "", nil, failureMessage(err))
		return err
	}

	s.record(ctx, domain.ActionPasswordReset, domain.OutcomeSuccess, "", domain.SnapshotOf(updated), "Password reset with token")
	return nil
}

// ChangePassword replaces the credential of an authenticated user after
// verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, p Principal, oldPassword, newPassword string) error {
	if !p.authenticated() {
		return domain.ErrNotAuthenticated()
	}
	if oldPassword == "" {
		return domain.ErrMissingField("old_password")
	}
	if newPassword == "" {
		return domain.ErrMissingField("new_password")
	}

	var subject *domain.UserSnapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.FindByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		subject = domain.SnapshotOf(u)
		if !u.Enabled {
			return domain.ErrAccountDisabled()
		}

		if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
			return domain.ErrInvalidOldCredential()
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return systemError(err)
		}
		u.PasswordHash = hash
		u.UpdatedAt = s.now()
		_, err = s.users.Update(ctx, u)
		return err
	})
	if err != nil {
		msg := failureMessage(err)
		if domain.Is(err, "invalid_old_credential") {
			msg = "Invalid old password"
		}
		s.record(ctx, domain.ActionPasswordUpdate, domain.OutcomeFailure, p.UserID, subject, msg)
		return err
	}

	s.record(ctx, domain.ActionPasswordUpdate, domain.OutcomeSuccess, p.UserID, subject, "User password updated")
	return nil
}
