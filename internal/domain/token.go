package domain

import "time"

// TokenKind distinguishes the two single-use token flows.
type TokenKind string

const (
	TokenVerification  TokenKind = "verification"
	TokenPasswordReset TokenKind = "password_reset"
)

// AllTokenKinds is the set purged by the sweeper.
var AllTokenKinds = []TokenKind{TokenVerification, TokenPasswordReset}

func (k TokenKind) Valid() bool {
	return k == TokenVerification || k == TokenPasswordReset
}

type Token struct {
	Token     string
	Kind      TokenKind
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired is true once now has reached the expiry instant.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
