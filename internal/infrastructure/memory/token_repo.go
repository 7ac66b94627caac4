package memory

import (
	"context"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

type TokenRepo struct{ s *Store }

func (r *TokenRepo) FindByToken(ctx context.Context, kind domain.TokenKind, token string) (domain.Token, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.tokens[kind][token]
	if !ok {
		return domain.Token{}, domain.ErrTokenInvalid()
	}
	return t, nil
}

func (r *TokenRepo) FindByUser(ctx context.Context, kind domain.TokenKind, userID string) (domain.Token, error) {
	defer r.s.lock(ctx)()

	for _, t := range r.s.tokens[kind] {
		if t.UserID == userID {
			return t, nil
		}
	}
	return domain.Token{}, domain.ErrTokenInvalid()
}

// Save mirrors the SQL upsert: a token string is unique per kind, and a new
// token replaces the user's previous one of the same kind.
func (r *TokenRepo) Save(ctx context.Context, t domain.Token) error {
	defer r.s.lock(ctx)()

	m, ok := r.s.tokens[t.Kind]
	if !ok {
		return domain.ErrInvalidField("kind", string(t.Kind))
	}
	if existing, dup := m[t.Token]; dup && existing.UserID != t.UserID {
		return domain.ErrTokenConflict()
	}
	for k, existing := range m {
		if existing.UserID == t.UserID {
			delete(m, k)
		}
	}
	m[t.Token] = t
	return nil
}

func (r *TokenRepo) Delete(ctx context.Context, kind domain.TokenKind, token string) (bool, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.tokens[kind][token]; !ok {
		return false, nil
	}
	delete(r.s.tokens[kind], token)
	return true, nil
}

func (r *TokenRepo) DeleteByUser(ctx context.Context, kind domain.TokenKind, userID string) error {
	defer r.s.lock(ctx)()

	for k, t := range r.s.tokens[kind] {
		if t.UserID == userID {
			delete(r.s.tokens[kind], k)
		}
	}
	return nil
}

func (r *TokenRepo) DeleteExpired(ctx context.Context, kind domain.TokenKind, now time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for k, t := range r.s.tokens[kind] {
		if !t.ExpiresAt.After(now) {
			delete(r.s.tokens[kind], k)
			n++
		}
	}
	return n, nil
}
