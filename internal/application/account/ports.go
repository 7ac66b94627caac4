package account

import (
	"context"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

/*
TxManager
---------
Unit of work. The transaction is carried on the context handed to fn; every
repository call made with that context joins it. A non-nil error from fn
rolls everything back.
*/
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

/*
UserRepo
--------
Credential Store for users. Lookups return domain.ErrUserNotFound when absent.
FindByEmailForUpdate additionally takes a row lock for the surrounding
transaction so read-modify-write sequences cannot lose updates.
*/
type UserRepo interface {
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByEmailForUpdate(ctx context.Context, email string) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	Create(ctx context.Context, u domain.User) (domain.User, error)
	Update(ctx context.Context, u domain.User) (domain.User, error)
	Delete(ctx context.Context, id string) error
}

/*
RoleRepo
--------
Roles and the explicit user<->role association records. Nothing cascades:
the workflow removes associations itself before deleting a user.
*/
type RoleRepo interface {
	FindByName(ctx context.Context, name string) (domain.Role, error)
	AssignToUser(ctx context.Context, userID, roleID string) error
	RemoveAllFromUser(ctx context.Context, userID string) error
	ListForUser(ctx context.Context, userID string) ([]domain.Role, error)
}

/*
TokenRepo
---------
Token Store, partitioned by kind. Delete reports whether a row was removed so
consumption can detect that a purge (or another consumer) got there first.
*/
type TokenRepo interface {
	FindByToken(ctx context.Context, kind domain.TokenKind, token string) (domain.Token, error)
	FindByUser(ctx context.Context, kind domain.TokenKind, userID string) (domain.Token, error)
	Save(ctx context.Context, t domain.Token) error
	Delete(ctx context.Context, kind domain.TokenKind, token string) (bool, error)
	DeleteByUser(ctx context.Context, kind domain.TokenKind, userID string) error
	DeleteExpired(ctx context.Context, kind domain.TokenKind, now time.Time) (int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hash.
	Compare(hash string, password string) error
}

type TokenSigner interface {
	SignAccessToken(userID, email, sessionID string, roles []string, ttl time.Duration) (string, error)
}

/*
EmailDispatcher
---------------
Hands verification / reset links to whatever delivers email.
*/
type EmailDispatcher interface {
	SendVerification(ctx context.Context, msg VerificationEmail) error
	SendPasswordReset(ctx context.Context, msg PasswordResetEmail) error
}

type VerificationEmail struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PasswordResetEmail struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

/*
SessionStore
------------
Per-session profile keyed by session id, also indexed by the owning user so
every session of an account can be dropped at once.
*/
type SessionStore interface {
	Put(ctx context.Context, sessionID string, p SessionProfile, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (SessionProfile, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

type SessionProfile struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// AuditRecorder must never block or fail the caller.
type AuditRecorder interface {
	Record(evt domain.AuditEvent)
}

type AuditRecorderFunc func(evt domain.AuditEvent)

func (f AuditRecorderFunc) Record(evt domain.AuditEvent) { f(evt) }

type Clock func() time.Time
