package authcore

import (
	"time"

	"github.com/viridial/authcore/account"
)

type (
	Account        = account.Account
	AccountSummary = account.Summary
	AccountStore   = account.Store
	GeoLocator     = account.GeoLocator
)

// TokenPair is an access token and the refresh token that can renew it.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SignInResult is returned by a successful SignIn.
type SignInResult struct {
	TokenPair
	Account AccountSummary `json:"user"`
}

// SignUpRequest describes a new account.
type SignUpRequest struct {
	Identifier  string
	Secret      string
	DisplayName string
	Locale      string
	RoleIDs     []string
}

// SignUpResult reports the created account and whether a verification mail
// was queued.
type SignUpResult struct {
	AccountID            string `json:"id"`
	Identifier           string `json:"email"`
	VerificationRequired bool   `json:"verificationRequired"`
	VerificationQueued   bool   `json:"verificationQueued"`
}

// Identity is what a valid access token asserts.
type Identity struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// HasRole reports whether the identity carries any of roles.
func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, want := range roles {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// HealthStatus reports counter-store reachability.
type HealthStatus struct {
	Available    bool          `json:"available"`
	RedisLatency time.Duration `json:"redisLatency"`
	Error        string        `json:"error,omitempty"`
}
