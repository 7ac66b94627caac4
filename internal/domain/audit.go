package domain

import "time"

type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "Success"
	OutcomeFailure AuditOutcome = "Failure"
)

// Audit action names.
const (
	ActionRegistration        = "Registration"
	ActionRegistrationConfirm = "Registration Confirmation"
	ActionResendVerification  = "Resend Reg Token"
	ActionResetRequest        = "Reset Password"
	ActionValidateResetToken  = "ValidateResetToken"
	ActionPasswordReset       = "PasswordReset"
	ActionPasswordUpdate      = "PasswordUpdate"
	ActionProfileUpdate       = "ProfileUpdate"
	ActionAccountDelete       = "AccountDelete"
	ActionAccountDisable      = "AccountDisable"
	ActionLoginSuccess        = "LoginSuccess"
	ActionLoginFailure        = "LoginFailure"
	ActionAccountLocked       = "AccountLocked"
	ActionAccountUnlocked     = "AccountUnlocked"
)

// UserSnapshot is a frozen copy of the subject at event time. It survives a
// hard delete of the user row.
type UserSnapshot struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Enabled   bool   `json:"enabled"`
}

func SnapshotOf(u User) *UserSnapshot {
	return &UserSnapshot{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Enabled:   u.Enabled,
	}
}

// AuditEvent is append-only. ActorID is empty when the action precedes
// authentication; Subject is nil when no user could be resolved.
type AuditEvent struct {
	ID        string
	ActorID   string
	Subject   *UserSnapshot
	SessionID string
	ClientIP  string
	UserAgent string
	Action    string
	Outcome   AuditOutcome
	Message   string
	Timestamp time.Time
}
