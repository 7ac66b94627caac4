package account

import (
	"context"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

// DeleteOrDisable removes or disables the caller's account according to
// configuration. Outstanding tokens go with it in the same transaction, role
// associations too on hard delete. Every session of the user is dropped
// afterwards, not only the caller's.
func (s *Service) DeleteOrDisable(ctx context.Context, p Principal) error {
	if !p.authenticated() {
		return domain.ErrNotAuthenticated()
	}

	action := domain.ActionAccountDisable
	if s.cfg.HardDelete {
		action = domain.ActionAccountDelete
	}

	var snapshot *domain.UserSnapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.FindByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		snapshot = domain.SnapshotOf(u)

		if err := s.tokens.RevokeAll(ctx, u.ID); err != nil {
			return err
		}

		if !s.cfg.HardDelete {
			now := s.now()
			u.Disable(now)
			u.UpdatedAt = now
			_, err = s.users.Update(ctx, u)
			return err
		}

		if err := s.roles.RemoveAllFromUser(ctx, u.ID); err != nil {
			return err
		}
		return s.users.Delete(ctx, u.ID)
	})
	if err != nil {
		s.record(ctx, action, domain.OutcomeFailure, p.UserID, snapshot, failureMessage(err))
		return err
	}

	if err := s.sessions.DeleteAllForUser(ctx, p.UserID); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("user_id", p.UserID).Msg("sessions not cleared after account removal")
		if p.SessionID != "" {
			_ = s.sessions.Delete(ctx, p.SessionID)
		}
	}

	msg := "User account disabled"
	if s.cfg.HardDelete {
		msg = "User account deleted"
	}
	s.record(ctx, action, domain.OutcomeSuccess, p.UserID, snapshot, msg)
	return nil
}
