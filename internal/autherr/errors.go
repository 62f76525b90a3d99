package autherr

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account temporarily locked")
	ErrTooManyAttempts     = errors.New("too many sign-in attempts")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token expired")
	ErrSigning             = errors.New("token signing unavailable")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrForbidden           = errors.New("forbidden")
	ErrInternal            = errors.New("internal error")
	ErrEngineNotReady      = errors.New("engine not initialized")
)

// RetryError attaches the time left before a throttled or locked caller may
// try again. It matches its wrapped sentinel under errors.Is.
type RetryError struct {
	Err   error
	After time.Duration
}

func (e *RetryError) Error() string { return e.Err.Error() }

func (e *RetryError) Unwrap() error { return e.Err }

// RetryAfter extracts the wait carried by a RetryError in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var re *RetryError
	if errors.As(err, &re) && re.After > 0 {
		return re.After, true
	}
	return 0, false
}

// Class is the caller-facing category of a failure.
type Class int

const (
	ClassInternal Class = iota
	ClassUnauthorized
	ClassForbidden
	ClassTooManyRequests
	ClassBadRequest
	ClassConflict
)

var classes = []struct {
	err   error
	class Class
}{
	{ErrInvalidCredentials, ClassUnauthorized},
	{ErrInvalidRefreshToken, ClassUnauthorized},
	{ErrInvalidToken, ClassUnauthorized},
	{ErrExpiredToken, ClassUnauthorized},
	{ErrAccountLocked, ClassForbidden},
	{ErrEmailNotVerified, ClassForbidden},
	{ErrForbidden, ClassForbidden},
	{ErrTooManyAttempts, ClassTooManyRequests},
	{ErrInvalidRequest, ClassBadRequest},
	{ErrAccountExists, ClassConflict},
}

// ClassOf reports the class of err. Anything outside the taxonomy, including
// ErrSigning, is internal, and so is anything wrapping ErrInternal whatever
// else it wraps.
func ClassOf(err error) Class {
	if err == nil || errors.Is(err, ErrInternal) {
		return ClassInternal
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassInternal
}

// Public returns the taxonomy sentinel that err wraps, or ErrInternal when it
// wraps none. Infrastructure details never leave through Public.
func Public(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInternal) {
		return ErrInternal
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.err
		}
	}
	if errors.Is(err, ErrEngineNotReady) {
		return ErrEngineNotReady
	}
	return ErrInternal
}

// HTTPStatus maps a class to its HTTP status code.
func (c Class) HTTPStatus() int {
	switch c {
	case ClassUnauthorized:
		return http.StatusUnauthorized
	case ClassForbidden:
		return http.StatusForbidden
	case ClassTooManyRequests:
		return http.StatusTooManyRequests
	case ClassBadRequest:
		return http.StatusBadRequest
	case ClassConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (c Class) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassForbidden:
		return "forbidden"
	case ClassTooManyRequests:
		return "too_many_requests"
	case ClassBadRequest:
		return "bad_request"
	case ClassConflict:
		return "conflict"
	default:
		return "internal"
	}
}
