package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

// TokenRepo stores verification and password-reset tokens in one table keyed
// by (kind, token). The unique (kind, user_id) constraint backs the
// one-live-token-per-purpose rule; Save replaces on it.
type TokenRepo struct {
	db *sql.DB
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

const tokenColumns = `token, kind, user_id, expires_at, created_at`

func scanToken(row rowScanner) (domain.Token, error) {
	var (
		t    domain.Token
		kind string
	)
	if err := row.Scan(&t.Token, &kind, &t.UserID, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return domain.Token{}, err
	}
	t.Kind = domain.TokenKind(kind)
	return t, nil
}

func (r *TokenRepo) FindByToken(ctx context.Context, kind domain.TokenKind, token string) (domain.Token, error) {
	const q = `
SELECT ` + tokenColumns + `
FROM account_tokens
WHERE kind = $1 AND token = $2`

	t, err := scanToken(conn(ctx, r.db).QueryRowContext(ctx, q, string(kind), token))
	if err != nil {
		if isNoRows(err) {
			return domain.Token{}, domain.ErrTokenInvalid()
		}
		return domain.Token{}, domain.ErrDBUnavailable(err)
	}
	return t, nil
}

func (r *TokenRepo) FindByUser(ctx context.Context, kind domain.TokenKind, userID string) (domain.Token, error) {
	const q = `
SELECT ` + tokenColumns + `
FROM account_tokens
WHERE kind = $1 AND user_id = $2`

	t, err := scanToken(conn(ctx, r.db).QueryRowContext(ctx, q, string(kind), userID))
	if err != nil {
		if isNoRows(err) {
			return domain.Token{}, domain.ErrTokenInvalid()
		}
		return domain.Token{}, domain.ErrDBUnavailable(err)
	}
	return t, nil
}

func (r *TokenRepo) Save(ctx context.Context, t domain.Token) error {
	if !t.Kind.Valid() {
		return domain.ErrInvalidField("kind", string(t.Kind))
	}

	// The upsert on (kind, user_id) makes the save itself the supersede: two
	// concurrent issues for one user both succeed and the later one wins.
	const q = `
INSERT INTO account_tokens (` + tokenColumns + `)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (kind, user_id) DO UPDATE
SET token = EXCLUDED.token,
    expires_at = EXCLUDED.expires_at,
    created_at = EXCLUDED.created_at;`

	_, err := conn(ctx, r.db).ExecContext(ctx, q, t.Token, string(t.Kind), t.UserID, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return domain.ErrTokenConflict()
		case pgForeignKeyViolation:
			return domain.ErrUserNotFound()
		}
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

// Delete reports whether a row was removed. false means a concurrent consume
// or purge got there first.
func (r *TokenRepo) Delete(ctx context.Context, kind domain.TokenKind, token string) (bool, error) {
	const q = `DELETE FROM account_tokens WHERE kind = $1 AND token = $2;`

	res, err := conn(ctx, r.db).ExecContext(ctx, q, string(kind), token)
	if err != nil {
		return false, domain.ErrDBUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.ErrDBUnavailable(err)
	}
	return n > 0, nil
}

func (r *TokenRepo) DeleteByUser(ctx context.Context, kind domain.TokenKind, userID string) error {
	const q = `DELETE FROM account_tokens WHERE kind = $1 AND user_id = $2;`

	if _, err := conn(ctx, r.db).ExecContext(ctx, q, string(kind), userID); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

func (r *TokenRepo) DeleteExpired(ctx context.Context, kind domain.TokenKind, now time.Time) (int64, error) {
	const q = `DELETE FROM account_tokens WHERE kind = $1 AND expires_at <= $2;`

	res, err := conn(ctx, r.db).ExecContext(ctx, q, string(kind), now)
	if err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	return n, nil
}
