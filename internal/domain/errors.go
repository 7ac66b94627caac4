package domain

import (
	"errors"
	"fmt"
)

// ErrKind groups domain errors so callers (HTTP, audit) can react per category.
type ErrKind string

const (
	KindValidation     ErrKind = "validation"     // 400
	KindAuth           ErrKind = "auth"           // 401
	KindForbidden      ErrKind = "forbidden"      // 403
	KindNotFound       ErrKind = "not_found"      // 404
	KindConflict       ErrKind = "conflict"       // 409
	KindRateLimited    ErrKind = "rate_limited"   // 429
	KindInfrastructure ErrKind = "infrastructure" // 503
	KindInternal       ErrKind = "internal"       // 500
)

// Error is a structured domain error.
// - Kind: category used for HTTP mapping and SystemError detection
// - Code: stable machine code
// - Message: safe summary for clients
// - Meta: optional details (field, reason, etc.)
// - Cause: wrapped internal error for logging
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind ErrKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind ErrKind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func WithMeta(err *Error, meta map[string]string) *Error {
	err.Meta = meta
	return err
}

func Is(err error, code string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsSystemError reports whether err is an infrastructure/internal failure
// rather than an expected domain outcome. Unknown errors count as system errors.
func IsSystemError(err error) bool {
	if err == nil {
		return false
	}
	var de *Error
	if !errors.As(err, &de) {
		return true
	}
	return de.Kind == KindInfrastructure || de.Kind == KindInternal
}

// ----------------------
// Validation errors (400)
// ----------------------

func ErrInvalidJSON(cause error) *Error {
	return Wrap(KindValidation, "invalid_json", "invalid JSON body", cause)
}

func ErrMissingField(field string) *Error {
	return WithMeta(New(KindValidation, "missing_field", "missing required field"), map[string]string{
		"field": field,
	})
}

func ErrInvalidField(field, reason string) *Error {
	return WithMeta(New(KindValidation, "invalid_field", "invalid field"), map[string]string{
		"field":  field,
		"reason": reason,
	})
}

func ErrWeakPassword(reason string) *Error {
	return WithMeta(New(KindValidation, "weak_password", "password does not meet requirements"), map[string]string{
		"reason": reason,
	})
}

// ----------------------
// Auth errors (401)
// ----------------------

// Login failures use this regardless of cause to avoid user enumeration.
func ErrInvalidCredentials() *Error {
	return New(KindAuth, "invalid_credentials", "invalid email or password")
}

func ErrInvalidOldCredential() *Error {
	return New(KindAuth, "invalid_old_credential", "current password is incorrect")
}

func ErrNotAuthenticated() *Error {
	return New(KindAuth, "not_authenticated", "authentication required")
}

func ErrTokenInvalid() *Error {
	return New(KindAuth, "token_invalid", "invalid token")
}

func ErrTokenExpired() *Error {
	return New(KindAuth, "token_expired", "token is expired")
}

// ----------------------
// Forbidden (403)
// ----------------------

func ErrAccountLocked() *Error {
	return New(KindForbidden, "account_locked", "account locked")
}

func ErrAccountDisabled() *Error {
	return New(KindForbidden, "account_disabled", "account is not enabled")
}

// ----------------------
// Not Found (404)
// ----------------------

func ErrUserNotFound() *Error {
	return New(KindNotFound, "user_not_found", "user not found")
}

func ErrRoleNotFound(name string) *Error {
	return WithMeta(New(KindNotFound, "role_not_found", "role not found"), map[string]string{
		"role": name,
	})
}

func ErrSessionNotFound() *Error {
	return New(KindNotFound, "session_not_found", "session not found")
}

// ----------------------
// Conflict (409)
// ----------------------

func ErrEmailAlreadyExists() *Error {
	return New(KindConflict, "email_already_exists", "email already registered")
}

func ErrAlreadyEnabled() *Error {
	return New(KindConflict, "already_enabled", "account is already verified")
}

func ErrTokenConflict() *Error {
	return New(KindConflict, "token_conflict", "token already exists")
}

// ----------------------
// Rate limit (429)
// ----------------------

func ErrRateLimited(scope string) *Error {
	return WithMeta(New(KindRateLimited, "rate_limited", "too many requests"), map[string]string{
		"scope": scope,
	})
}

// ----------------------
// Infrastructure / internal (5xx)
// ----------------------

func ErrDBUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "db_unavailable", "database unavailable", cause)
}

func ErrRedisUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "redis_unavailable", "cache unavailable", cause)
}

func ErrDispatchFailed(cause error) *Error {
	return Wrap(KindInfrastructure, "dispatch_failed", "email dispatch failed", cause)
}

func ErrHashFailed(cause error) *Error {
	return Wrap(KindInternal, "hash_failed", "password hashing failed", cause)
}

func ErrTokenSignFailed(cause error) *Error {
	return Wrap(KindInternal, "token_sign_failed", "token signing failed", cause)
}

func ErrRandomFailed(cause error) *Error {
	return Wrap(KindInternal, "random_failed", "random generation failed", cause)
}

// A missing seed (e.g. the default role) is an operator problem, not a user one.
func ErrConfig(reason string, cause error) *Error {
	return WithMeta(Wrap(KindInternal, "config_error", "service misconfigured", cause), map[string]string{
		"reason": reason,
	})
}

func ErrInternal(cause error) *Error {
	return Wrap(KindInternal, "internal_error", "internal error", cause)
}
