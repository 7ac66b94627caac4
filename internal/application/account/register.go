package account

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type RegisterResult struct {
	User domain.User
	// Session is set when the account was auto-enabled and logged in.
	Session *AuthSession
}

// Register creates the user, assigns the default role and, unless accounts are
// auto-enabled, issues a verification token. All of it commits or none of it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return RegisterResult{}, domain.ErrMissingField("email")
	}
	if in.Password == "" {
		return RegisterResult{}, domain.ErrMissingField("password")
	}

	var (
		created  domain.User
		verifyTk domain.Token
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return domain.ErrEmailAlreadyExists()
		case !isNotFound(err):
			return err
		}

		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return systemError(err)
		}

		role, err := s.roles.FindByName(ctx, s.cfg.DefaultRole)
		if domain.Is(err, "role_not_found") {
			return domain.ErrConfig("default role missing", err)
		}
		if err != nil {
			return err
		}

		now := s.now()
		created, err = s.users.Create(ctx, domain.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			Enabled:      s.cfg.AutoEnable,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := s.roles.AssignToUser(ctx, created.ID, role.ID); err != nil {
			return err
		}
		created.RoleIDs = []string{role.ID}

		if !s.cfg.AutoEnable {
			verifyTk, err = s.tokens.Issue(ctx, created.ID, domain.TokenVerification)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.record(ctx, domain.ActionRegistration, domain.OutcomeFailure, "", nil, failureMessage(err))
		return RegisterResult{}, err
	}

	s.record(ctx, domain.ActionRegistration, domain.OutcomeSuccess, "", domain.SnapshotOf(created), "Registration Successful")

	if !s.cfg.AutoEnable {
		// The account is committed; a lost email is recoverable via resend.
		if err := s.sendVerification(ctx, created, verifyTk); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("user_id", created.ID).Msg("verification email not dispatched")
		}
		return RegisterResult{User: created}, nil
	}

	sess, err := s.AuthWithoutPassword(ctx, created)
	if err != nil {
		// Registration stands; the client can log in normally.
		logger.WithCtx(ctx).Warn().Err(err).Str("user_id", created.ID).Msg("post-registration login failed")
		return RegisterResult{User: created}, nil
	}
	return RegisterResult{User: created, Session: &sess}, nil
}

// ResendVerification supersedes any outstanding verification token with a new
// one. Unknown identities are a silent no-op; only pending accounts qualify.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return domain.ErrMissingField("email")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		s.record(ctx, domain.ActionResendVerification, domain.OutcomeFailure, "", nil, failureMessage(err))
		return err
	}
	switch u.State() {
	case domain.StateEnabled:
		s.record(ctx, domain.ActionResendVerification, domain.OutcomeFailure, "", domain.SnapshotOf(u), "Account is already verified")
		return domain.ErrAlreadyEnabled()
	case domain.StateDisabled:
		s.record(ctx, domain.ActionResendVerification, domain.OutcomeFailure, "", domain.SnapshotOf(u), "Account is disabled")
		return domain.ErrAccountDisabled()
	}

	tok, err := s.tokens.Issue(ctx, u.ID, domain.TokenVerification)
	if err != nil {
		s.record(ctx, domain.ActionResendVerification, domain.OutcomeFailure, "", domain.SnapshotOf(u), failureMessage(err))
		return err
	}
	if err := s.sendVerification(ctx, u, tok); err != nil {
		s.record(ctx, domain.ActionResendVerification, domain.OutcomeFailure, "", domain.SnapshotOf(u), failureMessage(err))
		return err
	}

	s.record(ctx, domain.ActionResendVerification, domain.OutcomeSuccess, "", domain.SnapshotOf(u), "Verification Email Resent")
	return nil
}

func (s *Service) sendVerification(ctx context.Context, u domain.User, tok domain.Token) error {
	err := s.mailer.SendVerification(ctx, VerificationEmail{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		URL:       s.cfg.VerifyEmailBaseURL + tok.Token,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		return domain.ErrDispatchFailed(err)
	}
	return nil
}
