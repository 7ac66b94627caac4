package bootstrap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

type seedHasher interface {
	Hash(password string) (string, error)
}

// SeedUsers installs enabled demo accounts. Existing emails are left alone, so
// it is restart safe.
func SeedUsers(ctx context.Context, st storage, hasher seedHasher) {
	seeds := []struct {
		Email string
		Role  string
		Pass  string
	}{
		{Email: "admin@example.com", Role: domain.RoleAdmin, Pass: "AdminPassword123!"},
		{Email: "user@example.com", Role: domain.RoleUser, Pass: "UserPassword123!"},
	}

	log := logger.Component("seed")
	now := time.Now()
	for _, s := range seeds {
		hash, err := hasher.Hash(s.Pass)
		if err != nil {
			log.Warn().Err(err).Str("email", s.Email).Msg("hash failed")
			continue
		}

		err = st.tx.WithinTx(ctx, func(ctx context.Context) error {
			role, err := st.roles.FindByName(ctx, s.Role)
			if err != nil {
				return err
			}
			u, err := st.users.Create(ctx, domain.User{
				ID:           uuid.NewString(),
				Email:        s.Email,
				PasswordHash: hash,
				Enabled:      true,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				return err
			}
			return st.roles.AssignToUser(ctx, u.ID, role.ID)
		})
		switch {
		case domain.Is(err, "email_already_exists"):
		case err != nil:
			log.Warn().Err(err).Str("email", s.Email).Msg("seed failed")
		default:
			log.Info().Str("email", s.Email).Str("role", s.Role).Msg("seeded")
		}
	}
}
