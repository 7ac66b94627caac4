package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

// TokenStatus is the outcome of validating a single-use token.
type TokenStatus string

const (
	TokenValid   TokenStatus = "VALID"
	TokenInvalid TokenStatus = "INVALID"
	TokenExpired TokenStatus = "EXPIRED"
)

// Err converts a non-valid status into the matching domain error.
func (s TokenStatus) Err() error {
	switch s {
	case TokenValid:
		return nil
	case TokenExpired:
		return domain.ErrTokenExpired()
	default:
		return domain.ErrTokenInvalid()
	}
}

type TokenConfig struct {
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	// TokenBytes is the entropy of generated tokens.
	TokenBytes int
}

// TokenManager owns issuance, validation, consumption and purge of
// verification and password-reset tokens. It is the only writer of token rows.
type TokenManager struct {
	tx     TxManager
	tokens TokenRepo
	now    Clock
	cfg    TokenConfig
}

func NewTokenManager(tx TxManager, tokens TokenRepo, now Clock, cfg TokenConfig) *TokenManager {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = 30 * time.Minute
	}
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = 32 // 256-bit
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{tx: tx, tokens: tokens, now: now, cfg: cfg}
}

func (m *TokenManager) ttl(kind domain.TokenKind) time.Duration {
	if kind == domain.TokenPasswordReset {
		return m.cfg.PasswordResetTTL
	}
	return m.cfg.VerificationTTL
}

// Issue creates a fresh token for userID. Any live token of the same kind for
// that user is deleted first, so at most one is valid at a time.
func (m *TokenManager) Issue(ctx context.Context, userID string, kind domain.TokenKind) (domain.Token, error) {
	if userID == "" {
		return domain.Token{}, domain.ErrMissingField("user_id")
	}
	if !kind.Valid() {
		return domain.Token{}, domain.ErrInvalidField("kind", string(kind))
	}

	raw, err := newOpaqueToken(m.cfg.TokenBytes)
	if err != nil {
		return domain.Token{}, domain.ErrRandomFailed(err)
	}

	now := m.now()
	tok := domain.Token{
		Token:     raw,
		Kind:      kind,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl(kind)),
		CreatedAt: now,
	}

	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := m.tokens.DeleteByUser(ctx, kind, userID); err != nil {
			return err
		}
		return m.tokens.Save(ctx, tok)
	})
	if err != nil {
		return domain.Token{}, err
	}
	return tok, nil
}

// Validate is a pure lookup; it never mutates the record.
func (m *TokenManager) Validate(ctx context.Context, token string, kind domain.TokenKind) (TokenStatus, domain.Token, error) {
	if token == "" {
		return TokenInvalid, domain.Token{}, nil
	}
	tok, err := m.tokens.FindByToken(ctx, kind, token)
	if domain.Is(err, "token_invalid") {
		return TokenInvalid, domain.Token{}, nil
	}
	if err != nil {
		return TokenInvalid, domain.Token{}, err
	}
	if tok.Expired(m.now()) {
		return TokenExpired, tok, nil
	}
	return TokenValid, tok, nil
}

// Consume deletes the token. If the row is already gone (consumed or purged)
// it reports TokenInvalid so the caller's transaction rolls back.
func (m *TokenManager) Consume(ctx context.Context, token string, kind domain.TokenKind) error {
	deleted, err := m.tokens.Delete(ctx, kind, token)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrTokenInvalid()
	}
	return nil
}

// RevokeAll drops every token owned by userID.
func (m *TokenManager) RevokeAll(ctx context.Context, userID string) error {
	return m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, kind := range domain.AllTokenKinds {
			if err := m.tokens.DeleteByUser(ctx, kind, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// PurgeResult is the number of rows removed per kind.
type PurgeResult map[domain.TokenKind]int64

func (r PurgeResult) Total() int64 {
	var n int64
	for _, v := range r {
		n += v
	}
	return n
}

// PurgeExpired deletes all tokens of both kinds with expiry <= now. Tokens
// issued after now are untouched, so it is safe alongside Issue.
func (m *TokenManager) PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error) {
	res := PurgeResult{}
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, kind := range domain.AllTokenKinds {
			n, err := m.tokens.DeleteExpired(ctx, kind, now)
			if err != nil {
				return err
			}
			res[kind] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// newOpaqueToken returns a URL-safe opaque token.
func newOpaqueToken(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		return "", errors.New("invalid token length")
	}
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
