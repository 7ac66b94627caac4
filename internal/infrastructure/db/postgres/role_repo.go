package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/baechuer/account-service/internal/domain"
)

type RoleRepo struct {
	db *sql.DB
}

func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

const roleColumns = `r.id, r.name,
       array_to_string(ARRAY(SELECT rp.privilege_id FROM role_privileges rp WHERE rp.role_id = r.id ORDER BY rp.privilege_id), ',')`

func scanRole(row rowScanner) (domain.Role, error) {
	var (
		role  domain.Role
		privs string
	)
	if err := row.Scan(&role.ID, &role.Name, &privs); err != nil {
		return domain.Role{}, err
	}
	if privs != "" {
		role.PrivilegeIDs = strings.Split(privs, ",")
	}
	return role, nil
}

func (r *RoleRepo) FindByName(ctx context.Context, name string) (domain.Role, error) {
	const q = `
SELECT ` + roleColumns + `
FROM roles r
WHERE r.name = $1`

	role, err := scanRole(conn(ctx, r.db).QueryRowContext(ctx, q, name))
	if err != nil {
		if isNoRows(err) {
			return domain.Role{}, domain.ErrRoleNotFound(name)
		}
		return domain.Role{}, domain.ErrDBUnavailable(err)
	}
	return role, nil
}

func (r *RoleRepo) AssignToUser(ctx context.Context, userID, roleID string) error {
	const q = `
INSERT INTO user_roles (user_id, role_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING;`

	if _, err := conn(ctx, r.db).ExecContext(ctx, q, userID, roleID); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return domain.ErrRoleNotFound(roleID)
		}
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

func (r *RoleRepo) RemoveAllFromUser(ctx context.Context, userID string) error {
	const q = `DELETE FROM user_roles WHERE user_id = $1;`
	if _, err := conn(ctx, r.db).ExecContext(ctx, q, userID); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

func (r *RoleRepo) ListForUser(ctx context.Context, userID string) ([]domain.Role, error) {
	const q = `
SELECT ` + roleColumns + `
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
ORDER BY r.name`

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, domain.ErrDBUnavailable(err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	return out, nil
}
