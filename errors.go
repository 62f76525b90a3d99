package authcore

import (
	"time"

	"github.com/viridial/authcore/internal/autherr"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// secrets.
	ErrInvalidCredentials = autherr.ErrInvalidCredentials
	// ErrAccountLocked means the durable lock on the account is active.
	ErrAccountLocked = autherr.ErrAccountLocked
	// ErrTooManyAttempts means the windowed attempt counter reached the limit.
	ErrTooManyAttempts  = autherr.ErrTooManyAttempts
	ErrEmailNotVerified = autherr.ErrEmailNotVerified
	// ErrInvalidRefreshToken covers missing allow-list entries, bad
	// signatures, and expired refresh tokens alike.
	ErrInvalidRefreshToken = autherr.ErrInvalidRefreshToken
	ErrInvalidToken        = autherr.ErrInvalidToken
	ErrExpiredToken        = autherr.ErrExpiredToken
	// ErrSigning reports a missing signing secret. It classifies as internal.
	ErrSigning        = autherr.ErrSigning
	ErrAccountExists  = autherr.ErrAccountExists
	ErrInvalidRequest = autherr.ErrInvalidRequest
	ErrForbidden      = autherr.ErrForbidden
	ErrInternal       = autherr.ErrInternal
	ErrEngineNotReady = autherr.ErrEngineNotReady
)

// StatusClass is the caller-facing category of an error.
type StatusClass = autherr.Class

const (
	StatusInternal        = autherr.ClassInternal
	StatusUnauthorized    = autherr.ClassUnauthorized
	StatusForbidden       = autherr.ClassForbidden
	StatusTooManyRequests = autherr.ClassTooManyRequests
	StatusBadRequest      = autherr.ClassBadRequest
	StatusConflict        = autherr.ClassConflict
)

// ClassOf maps err to its status class. Unclassified errors are internal.
func ClassOf(err error) StatusClass {
	return autherr.ClassOf(err)
}

// PublicError returns the sentinel err wraps, or ErrInternal. The result is
// safe to show to an end user.
func PublicError(err error) error {
	return autherr.Public(err)
}

// RetryError carries the wait before a throttled or locked sign-in may be
// retried. Check it with RetryAfter; errors.Is still sees the sentinel.
type RetryError = autherr.RetryError

// RetryAfter reports how long the caller should wait before retrying, when
// err carries that information.
func RetryAfter(err error) (time.Duration, bool) {
	return autherr.RetryAfter(err)
}
