package account

import (
	"context"
	"time"

	"github.com/baechuer/account-service/internal/domain"
	"github.com/baechuer/account-service/internal/logger"
)

type LockoutConfig struct {
	// Threshold is the number of consecutive failures that locks an account.
	Threshold int
	// Duration is how long a lock holds before the next status check clears it.
	Duration time.Duration
}

// LockoutEngine tracks failed logins per identity. Every update is a
// read-modify-write under a row lock so concurrent failures never lose counts.
type LockoutEngine struct {
	tx    TxManager
	users UserRepo
	audit AuditRecorder
	now   Clock
	cfg   LockoutConfig
}

func NewLockoutEngine(tx TxManager, users UserRepo, audit AuditRecorder, now Clock, cfg LockoutConfig) *LockoutEngine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 10
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	if audit == nil {
		audit = AuditRecorderFunc(func(domain.AuditEvent) {})
	}
	if now == nil {
		now = time.Now
	}
	return &LockoutEngine{tx: tx, users: users, audit: audit, now: now, cfg: cfg}
}

// LoginSucceeded clears the failure counter and any lock. Unknown identities are ignored.
func (e *LockoutEngine) LoginSucceeded(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	var (
		updated domain.User
		found   bool
	)
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := e.users.FindByEmailForUpdate(ctx, email)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		u.ResetLockout()
		u.UpdatedAt = e.now()
		updated, err = e.users.Update(ctx, u)
		return err
	})
	if err != nil {
		e.record(ctx, domain.ActionLoginSuccess, domain.OutcomeFailure, nil, "lockout reset not persisted")
		logger.WithCtx(ctx).Error().Err(err).Str("action", "login_succeeded").Msg("lockout write failed")
		return systemError(err)
	}
	if !found {
		e.record(ctx, domain.ActionLoginSuccess, domain.OutcomeSuccess, nil, "unknown identity")
		return nil
	}
	e.record(ctx, domain.ActionLoginSuccess, domain.OutcomeSuccess, domain.SnapshotOf(updated), "login succeeded")
	return nil
}

// LoginFailed bumps the failure counter and locks once the threshold is reached.
func (e *LockoutEngine) LoginFailed(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	var (
		updated   domain.User
		found     bool
		lockedNow bool
	)
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := e.users.FindByEmailForUpdate(ctx, email)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		now := e.now()
		lockedNow = u.RecordFailedLogin(now, e.cfg.Threshold)
		u.UpdatedAt = now
		updated, err = e.users.Update(ctx, u)
		return err
	})
	if err != nil {
		e.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, nil, "failure count not persisted")
		logger.WithCtx(ctx).Error().Err(err).Str("action", "login_failed").Msg("lockout write failed")
		return systemError(err)
	}
	if !found {
		e.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, nil, "unknown identity")
		return nil
	}

	snap := domain.SnapshotOf(updated)
	e.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, snap, "invalid credentials")
	if lockedNow {
		e.record(ctx, domain.ActionAccountLocked, domain.OutcomeSuccess, snap, "failed login threshold reached")
		logger.WithCtx(ctx).Warn().
			Str("user_id", updated.ID).
			Int("failed_attempts", updated.FailedLoginAttempts).
			Msg("account locked")
	}
	return nil
}

// IsLocked reports the lock state. A lock older than the configured duration
// is cleared as a side effect and reported as unlocked.
func (e *LockoutEngine) IsLocked(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)

	u, err := e.users.FindByEmail(ctx, email)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		e.record(ctx, domain.ActionLoginFailure, domain.OutcomeFailure, nil, "lock state unreadable")
		logger.WithCtx(ctx).Error().Err(err).Str("action", "lock_check").Msg("lockout read failed")
		return false, systemError(err)
	}
	if !u.Locked {
		return false, nil
	}
	if !u.LockElapsed(e.now(), e.cfg.Duration) {
		return true, nil
	}

	// Re-check under the row lock; another caller may have unlocked or
	// re-locked in between.
	var (
		locked   bool
		unlocked domain.User
		didReset bool
	)
	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := e.users.FindByEmailForUpdate(ctx, email)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !u.Locked {
			return nil
		}
		now := e.now()
		if !u.LockElapsed(now, e.cfg.Duration) {
			locked = true
			return nil
		}
		u.ResetLockout()
		u.UpdatedAt = now
		unlocked, err = e.users.Update(ctx, u)
		didReset = err == nil
		return err
	})
	if err != nil {
		e.record(ctx, domain.ActionAccountUnlocked, domain.OutcomeFailure, domain.SnapshotOf(u), "auto-unlock not persisted")
		logger.WithCtx(ctx).Error().Err(err).Str("action", "auto_unlock").Msg("lockout write failed")
		return false, systemError(err)
	}
	if didReset {
		e.record(ctx, domain.ActionAccountUnlocked, domain.OutcomeSuccess, domain.SnapshotOf(unlocked), "lockout duration elapsed")
	}
	return locked, nil
}

func (e *LockoutEngine) record(ctx context.Context, action string, outcome domain.AuditOutcome, subject *domain.UserSnapshot, msg string) {
	e.audit.Record(newEvent(ctx, e.now(), action, outcome, "", subject, msg))
}
