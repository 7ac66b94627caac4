package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/account-service/internal/domain"
	appCtx "github.com/baechuer/account-service/internal/pkg/context"
)

// Service is the Account Workflow. It composes the lockout engine, the token
// manager and the stores into atomic business operations.
type Service struct {
	tx       TxManager
	users    UserRepo
	roles    RoleRepo
	tokens   *TokenManager
	lockout  *LockoutEngine
	hasher   PasswordHasher
	signer   TokenSigner
	sessions SessionStore
	mailer   EmailDispatcher
	audit    AuditRecorder
	now      Clock

	cfg Config
}

type Config struct {
	// AutoEnable skips email verification on registration.
	AutoEnable bool
	// HardDelete removes the user row instead of disabling it.
	HardDelete  bool
	DefaultRole string

	AccessTTL  time.Duration
	SessionTTL time.Duration

	// Base URLs for emailed links; the token is appended.
	VerifyEmailBaseURL   string // e.g. https://app/registration/confirm?token=
	PasswordResetBaseURL string // e.g. https://app/password/reset?token=
}

type Deps struct {
	Tx       TxManager
	Users    UserRepo
	Roles    RoleRepo
	Tokens   *TokenManager
	Lockout  *LockoutEngine
	Hasher   PasswordHasher
	Signer   TokenSigner
	Sessions SessionStore
	Mailer   EmailDispatcher
	Audit    AuditRecorder
	Clock    Clock
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = domain.RoleUser
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	audit := deps.Audit
	if audit == nil {
		audit = AuditRecorderFunc(func(domain.AuditEvent) {})
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		tx:       deps.Tx,
		users:    deps.Users,
		roles:    deps.Roles,
		tokens:   deps.Tokens,
		lockout:  deps.Lockout,
		hasher:   deps.Hasher,
		signer:   deps.Signer,
		sessions: deps.Sessions,
		mailer:   deps.Mailer,
		audit:    audit,
		now:      now,
		cfg:      cfg,
	}
}

// Principal is the authenticated caller. It is always passed explicitly.
type Principal struct {
	UserID    string
	Email     string
	SessionID string
}

func (p Principal) authenticated() bool { return strings.TrimSpace(p.UserID) != "" }

// AuthSession is the result of establishing an authenticated context.
type AuthSession struct {
	User        domain.User
	SessionID   string
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds
}

// AuthWithoutPassword establishes an authenticated context for u without a
// credential check. Callers must already hold proof of identity: a token that
// was just consumed, or an existing authenticated session.
func (s *Service) AuthWithoutPassword(ctx context.Context, u domain.User) (AuthSession, error) {
	if strings.TrimSpace(u.ID) == "" {
		return AuthSession{}, domain.ErrNotAuthenticated()
	}

	roles, err := s.roles.ListForUser(ctx, u.ID)
	if err != nil {
		return AuthSession{}, err
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
	}

	sessionID := uuid.NewString()
	profile := SessionProfile{
		UserID:      u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Roles:       roleNames,
		LastUpdated: s.now(),
	}
	if err := s.sessions.Put(ctx, sessionID, profile, s.cfg.SessionTTL); err != nil {
		return AuthSession{}, systemError(err)
	}

	access, err := s.signer.SignAccessToken(u.ID, u.Email, sessionID, roleNames, s.cfg.AccessTTL)
	if err != nil {
		_ = s.sessions.Delete(ctx, sessionID)
		return AuthSession{}, systemError(err)
	}

	return AuthSession{
		User:        u,
		SessionID:   sessionID,
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// Profile reads the per-session profile of an authenticated caller.
func (s *Service) Profile(ctx context.Context, p Principal) (SessionProfile, error) {
	if !p.authenticated() || p.SessionID == "" {
		return SessionProfile{}, domain.ErrNotAuthenticated()
	}
	return s.sessions.Get(ctx, p.SessionID)
}

// record emits an audit event enriched with the client attached to ctx.
func (s *Service) record(ctx context.Context, action string, outcome domain.AuditOutcome, actorID string, subject *domain.UserSnapshot, msg string) {
	s.audit.Record(newEvent(ctx, s.now(), action, outcome, actorID, subject, msg))
}

func newEvent(ctx context.Context, now time.Time, action string, outcome domain.AuditOutcome, actorID string, subject *domain.UserSnapshot, msg string) domain.AuditEvent {
	c := appCtx.GetClient(ctx)
	return domain.AuditEvent{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Subject:   subject,
		SessionID: c.SessionID,
		ClientIP:  c.IP,
		UserAgent: c.UserAgent,
		Action:    action,
		Outcome:   outcome,
		Message:   msg,
		Timestamp: now,
	}
}

// failureMessage keeps raw infrastructure causes out of the audit trail.
func failureMessage(err error) string {
	if domain.IsSystemError(err) {
		return "system error"
	}
	var de *domain.Error
	if asDomain(err, &de) {
		return de.Message
	}
	return err.Error()
}

func systemError(err error) error {
	var de *domain.Error
	if asDomain(err, &de) {
		return err
	}
	return domain.ErrInternal(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
