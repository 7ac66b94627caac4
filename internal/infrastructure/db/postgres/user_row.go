package postgres

import (
	"database/sql"
	"strings"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

type userRow struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Enabled             bool
	DisabledAt          sql.NullTime
	Locked              bool
	LockedAt            sql.NullTime
	FailedLoginAttempts int
	RoleIDs             string // comma separated, see userColumns
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// userColumns expects the users table aliased as u.
const userColumns = `u.id, u.email, u.password_hash, u.first_name, u.last_name, u.enabled, u.disabled_at, u.locked,
       u.locked_at, u.failed_login_attempts,
       array_to_string(ARRAY(SELECT ur.role_id FROM user_roles ur WHERE ur.user_id = u.id ORDER BY ur.role_id), ','),
       u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (userRow, error) {
	var ur userRow
	err := row.Scan(
		&ur.ID,
		&ur.Email,
		&ur.PasswordHash,
		&ur.FirstName,
		&ur.LastName,
		&ur.Enabled,
		&ur.DisabledAt,
		&ur.Locked,
		&ur.LockedAt,
		&ur.FailedLoginAttempts,
		&ur.RoleIDs,
		&ur.CreatedAt,
		&ur.UpdatedAt,
	)
	return ur, err
}

func (ur userRow) toDomain() domain.User {
	u := domain.User{
		ID:                  ur.ID,
		Email:               ur.Email,
		PasswordHash:        ur.PasswordHash,
		FirstName:           ur.FirstName,
		LastName:            ur.LastName,
		Enabled:             ur.Enabled,
		Locked:              ur.Locked,
		FailedLoginAttempts: ur.FailedLoginAttempts,
		CreatedAt:           ur.CreatedAt,
		UpdatedAt:           ur.UpdatedAt,
	}
	if ur.LockedAt.Valid {
		t := ur.LockedAt.Time
		u.LockedAt = &t
	}
	if ur.DisabledAt.Valid {
		t := ur.DisabledAt.Time
		u.DisabledAt = &t
	}
	if ur.RoleIDs != "" {
		u.RoleIDs = strings.Split(ur.RoleIDs, ",")
	}
	return u
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
