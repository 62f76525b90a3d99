package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrDuplicate is returned by Store.Create when the identifier is taken.
var ErrDuplicate = errors.New("account: duplicate identifier")

// Account is the durable record for one principal.
type Account struct {
	ID             string
	Identifier     string
	DisplayName    string
	SecretHash     string
	Locale         string
	EmailVerified  bool
	FailedAttempts int64
	LockUntil      time.Time
	RoleIDs        []string
	ProfileIDs     []string
	LastLogin      LoginContext
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the durable lock is still active at now.
func (a *Account) Locked(now time.Time) bool {
	return a != nil && !a.LockUntil.IsZero() && a.LockUntil.After(now)
}

// LoginContext records where the last successful sign-in came from.
type LoginContext struct {
	At        time.Time
	IP        string
	UserAgent string
	Geo       *GeoInfo
}

// GeoInfo is the coarse location resolved for a client address.
type GeoInfo struct {
	Country string
	Region  string
	City    string
}

// Update is a partial write. Nil fields are left untouched.
type Update struct {
	SecretHash     *string
	EmailVerified  *bool
	FailedAttempts *int64
	LockUntil      *time.Time
	LastLogin      *LoginContext
}

// Empty reports whether u would write nothing.
func (u Update) Empty() bool {
	return u.SecretHash == nil && u.EmailVerified == nil && u.FailedAttempts == nil &&
		u.LockUntil == nil && u.LastLogin == nil
}

// ClearThrottle returns an update resetting the durable attempt counter and
// lock.
func ClearThrottle() Update {
	zero := int64(0)
	unlocked := time.Time{}
	return Update{FailedAttempts: &zero, LockUntil: &unlocked}
}

// Field names a numeric field that Store.Increment can bump atomically.
type Field string

const FieldFailedAttempts Field = "failed_attempts"

// New is the input to Store.Create.
type New struct {
	Identifier    string
	DisplayName   string
	SecretHash    string
	Locale        string
	EmailVerified bool
	RoleIDs       []string
}

// Summary is the public view of an account returned on sign-in.
type Summary struct {
	ID            string   `json:"id"`
	Identifier    string   `json:"email"`
	DisplayName   string   `json:"displayName,omitempty"`
	Locale        string   `json:"preferredLanguage,omitempty"`
	EmailVerified bool     `json:"emailVerified"`
	Roles         []string `json:"roles,omitempty"`
	Profiles      []string `json:"profiles,omitempty"`
}

// Store is the durable account store.
//
// FindByIdentifier returns (nil, nil) when no record exists. Increment must be
// atomic on the store side and returns the post-increment value.
type Store interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	Update(ctx context.Context, identifier string, update Update) error
	Increment(ctx context.Context, identifier string, field Field) (int64, error)
	Create(ctx context.Context, input New) (*Account, error)
	Describe(ctx context.Context, acct *Account) (*Summary, error)
}

// GeoLocator resolves a client address. Implementations should return
// (nil, nil) when the address is unknown.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*GeoInfo, error)
}

// NormalizeIdentifier trims and lower-cases an email identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
