package authcore

import (
	"context"
	"errors"

	"github.com/viridial/authcore/internal/audit"
	"github.com/viridial/authcore/internal/dispatch"
)

const (
	auditEventSignInSuccess      = "signin_success"
	auditEventSignInFailure      = "signin_failure"
	auditEventSignInThrottled    = "signin_throttled"
	auditEventSignInLocked       = "signin_locked"
	auditEventSignInUnverified   = "signin_unverified"
	auditEventRefreshRotated     = "refresh_rotated"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshRevoked     = "refresh_revoked"
	auditEventSignUpSuccess      = "signup_success"
	auditEventSignUpDuplicate    = "signup_duplicate"
	auditEventEmailTokenIssued   = "email_verification_issued"
	auditEventEmailVerified      = "email_verified"
	auditEventEmailVerifyFailure = "email_verification_failure"
	auditEventAccountUnlocked    = "account_unlocked"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrTooManyAttempts    AuditErrorCode = "too_many_attempts"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrUnverified         AuditErrorCode = "email_not_verified"
	auditErrInvalidRefresh     AuditErrorCode = "invalid_refresh_token"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *dispatch.Dispatcher[audit.Event] {
	if !cfg.Enabled || sink == nil {
		return nil
	}
	return dispatch.New(dispatch.Config{BufferSize: cfg.BufferSize, DropIfFull: cfg.DropIfFull}, sink.Emit)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subject, identifier string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := audit.Event{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		Subject:    subject,
		Identifier: identifier,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	e.audit.Submit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTooManyAttempts):
		return auditErrTooManyAttempts
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrUnverified
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidRefresh
	case errors.Is(err, ErrExpiredToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	default:
		return auditErrInternal
	}
}
