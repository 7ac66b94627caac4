package account

import (
	"context"
	"strings"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

type ProfileInput struct {
	FirstName string
	LastName  string
}

// UpdateProfile changes the display names of the caller and refreshes the
// caller's session profile.
func (s *Service) UpdateProfile(ctx context.Context, p Principal, in ProfileInput) (domain.User, error) {
	if !p.authenticated() {
		return domain.User{}, domain.ErrNotAuthenticated()
	}

	var updated domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.FindByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		if !u.Enabled {
			return domain.ErrAccountDisabled()
		}
		u.FirstName = strings.TrimSpace(in.FirstName)
		u.LastName = strings.TrimSpace(in.LastName)
		u.UpdatedAt = s.now()
		updated, err = s.users.Update(ctx, u)
		return err
	})
	if err != nil {
		s.record(ctx, domain.ActionProfileUpdate, domain.OutcomeFailure, p.UserID, nil, failureMessage(err))
		return domain.User{}, err
	}

	if p.SessionID != "" {
		if prof, err := s.sessions.Get(ctx, p.SessionID); err == nil {
			prof.FirstName = updated.FirstName
			prof.LastName = updated.LastName
			prof.LastUpdated = s.now()
			if err := s.sessions.Put(ctx, p.SessionID, prof, s.cfg.SessionTTL); err != nil {
				logger.WithCtx(ctx).Warn().Err(err).Msg("session profile not refreshed")
			}
		}
	}

	s.record(ctx, domain.ActionProfileUpdate, domain.OutcomeSuccess, p.UserID, domain.SnapshotOf(updated), "User profile updated")
	return updated, nil
}
