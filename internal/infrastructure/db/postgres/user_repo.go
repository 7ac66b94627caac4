package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/baechuer/account-service/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findByEmail(ctx, email, false)
}

// FindByEmailForUpdate row-locks the user until the surrounding transaction
// ends. Concurrent lockout updates for one identity serialise on it.
func (r *UserRepo) FindByEmailForUpdate(ctx context.Context, email string) (domain.User, error) {
	return r.findByEmail(ctx, email, true)
}

func (r *UserRepo) findByEmail(ctx context.Context, email string, forUpdate bool) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}

	q := `
SELECT ` + userColumns + `
FROM users u
WHERE u.email = $1`
	if forUpdate {
		q += `
FOR UPDATE OF u`
	}

	ur, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, q, email))
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, domain.ErrMissingField("id")
	}

	const q = `
SELECT ` + userColumns + `
FROM users u
WHERE u.id = $1`

	ur, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = normalizeEmail(u.Email)
	if u.ID == "" {
		return domain.User{}, domain.ErrMissingField("id")
	}
	if u.Email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}
	if u.PasswordHash == "" {
		return domain.User{}, domain.ErrMissingField("password_hash")
	}

	const q = `
INSERT INTO users AS u (id, email, password_hash, first_name, last_name, enabled, disabled_at, locked,
                        locked_at, failed_login_attempts, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING ` + userColumns

	ur, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Enabled, nullTime(u.DisabledAt),
		u.Locked, nullTime(u.LockedAt), u.FailedLoginAttempts, u.CreatedAt, u.UpdatedAt,
	))
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

// Update persists every mutable column. Role ids are ignored: they live in
// user_roles and change only through RoleRepo.
func (r *UserRepo) Update(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = normalizeEmail(u.Email)
	if u.ID == "" {
		return domain.User{}, domain.ErrMissingField("id")
	}

	const q = `
UPDATE users u
SET email = $2,
    password_hash = $3,
    first_name = $4,
    last_name = $5,
    enabled = $6,
    disabled_at = $7,
    locked = $8,
    locked_at = $9,
    failed_login_attempts = $10,
    updated_at = $11
WHERE u.id = $1
RETURNING ` + userColumns

	ur, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Enabled, nullTime(u.DisabledAt),
		u.Locked, nullTime(u.LockedAt), u.FailedLoginAttempts, u.UpdatedAt,
	))
	if err != nil {
		switch {
		case isNoRows(err):
			return domain.User{}, domain.ErrUserNotFound()
		case pgCode(err) == pgUniqueViolation:
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

// Delete removes the user row only. Tokens and role associations must be
// removed first; the foreign keys do not cascade.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrMissingField("id")
	}

	const q = `DELETE FROM users WHERE id = $1;`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return domain.ErrInternal(err)
		}
		return domain.ErrDBUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrUserNotFound()
	}
	return nil
}
