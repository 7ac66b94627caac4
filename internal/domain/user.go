package domain

import "time"

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Enabled             bool
	// DisabledAt is set when an enabled account was switched off. It tells a
	// disabled account apart from one still waiting for verification.
	DisabledAt          *time.Time
	Locked              bool
	LockedAt            *time.Time
	FailedLoginAttempts int
	RoleIDs             []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AccountState is the coarse lifecycle state derived from the user flags.
type AccountState string

const (
	StatePending  AccountState = "pending"
	StateEnabled  AccountState = "enabled"
	StateDisabled AccountState = "disabled"
)

func (u User) State() AccountState {
	switch {
	case u.Enabled:
		return StateEnabled
	case u.DisabledAt != nil:
		return StateDisabled
	default:
		return StatePending
	}
}

// Disable switches the account off and stamps when it happened.
func (u *User) Disable(now time.Time) {
	t := now
	u.Enabled = false
	u.DisabledAt = &t
}

// RecordFailedLogin increments the counter and locks once threshold is reached.
// It returns true when this call transitioned the account into the locked state.
func (u *User) RecordFailedLogin(now time.Time, threshold int) bool {
	u.FailedLoginAttempts++
	if u.Locked || threshold <= 0 || u.FailedLoginAttempts < threshold {
		return false
	}
	t := now
	u.Locked = true
	u.LockedAt = &t
	return true
}

// ResetLockout clears the counter and any lock.
func (u *User) ResetLockout() {
	u.FailedLoginAttempts = 0
	u.Locked = false
	u.LockedAt = nil
}

// LockElapsed reports whether a lock has outlived duration at now.
// A lock without a timestamp is treated as elapsed so it cannot stick forever.
func (u User) LockElapsed(now time.Time, duration time.Duration) bool {
	if !u.Locked {
		return false
	}
	if u.LockedAt == nil {
		return true
	}
	return now.Sub(*u.LockedAt) >= duration
}

func (u User) HasRole(roleID string) bool {
	for _, id := range u.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never share slices/pointers with callers.
func (u User) Clone() User {
	out := u
	if u.LockedAt != nil {
		t := *u.LockedAt
		out.LockedAt = &t
	}
	if u.DisabledAt != nil {
		t := *u.DisabledAt
		out.DisabledAt = &t
	}
	if u.RoleIDs != nil {
		out.RoleIDs = append([]string(nil), u.RoleIDs...)
	}
	return out
}
