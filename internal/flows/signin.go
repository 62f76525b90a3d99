package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/internal/autherr"
	"github.com/viridial/authcore/internal/throttle"
)

// SignInFailure classifies why a sign-in did not produce tokens.
type SignInFailure int

const (
	SignInFailureNone SignInFailure = iota
	SignInFailureMalformed
	SignInFailureUnknownAccount
	SignInFailureBadSecret
	SignInFailureThrottled
	SignInFailureLocked
	SignInFailureUnverified
	SignInFailureStore
	SignInFailureIssue
)

func (f SignInFailure) String() string {
	switch f {
	case SignInFailureNone:
		return "none"
	case SignInFailureMalformed:
		return "malformed"
	case SignInFailureUnknownAccount:
		return "unknown_account"
	case SignInFailureBadSecret:
		return "bad_secret"
	case SignInFailureThrottled:
		return "throttled"
	case SignInFailureLocked:
		return "locked"
	case SignInFailureUnverified:
		return "unverified"
	case SignInFailureStore:
		return "store"
	default:
		return "issue"
	}
}

type SignInResult struct {
	Failure      SignInFailure
	Err          error
	Identifier   string
	Account      *account.Account
	Summary      *account.Summary
	AccessToken  string
	RefreshToken string
	// Phase is the throttle phase after a recorded failure.
	Phase          throttle.Phase
	SecretUpgraded bool
}

type SignInDeps struct {
	Accounts        account.Store
	Throttle        AttemptThrottle
	Codec           TokenCodec
	AllowList       RefreshAllowList
	Passwords       PasswordHasher
	Geo             account.GeoLocator
	TTLs            TokenTTLs
	AllowUnverified bool
	UpgradeSecrets  bool

	ClientIP  func(context.Context) string
	UserAgent func(context.Context) string
	Now       func() time.Time
	Logger    *zap.Logger
}

// classifyCredentialFailure is the only place a credential failure becomes
// an external error. Every reason maps to the same sentinel.
func classifyCredentialFailure(SignInFailure) error {
	return autherr.ErrInvalidCredentials
}

// RunSignIn authenticates identifier with secret and, on success, issues a
// token pair and records the login on the account.
func RunSignIn(ctx context.Context, identifier, secret string, deps SignInDeps) SignInResult {
	id := account.NormalizeIdentifier(identifier)
	res := SignInResult{Identifier: id}
	if id == "" || secret == "" {
		res.Failure = SignInFailureMalformed
		res.Err = classifyCredentialFailure(res.Failure)
		return res
	}

	acct, err := deps.Accounts.FindByIdentifier(ctx, id)
	if err != nil {
		res.Failure = SignInFailureStore
		res.Err = fmt.Errorf("%w: find account: %v", autherr.ErrInternal, err)
		return res
	}
	rec := throttleRecord(acct)

	if err := deps.Throttle.Check(ctx, id, rec); err != nil {
		res.Err = err
		res.Failure = SignInFailureThrottled
		if errors.Is(err, autherr.ErrAccountLocked) {
			res.Failure = SignInFailureLocked
		}
		return res
	}

	if acct == nil {
		res.Phase = deps.Throttle.RecordFailure(ctx, id, nil)
		res.Failure = SignInFailureUnknownAccount
		res.Err = classifyCredentialFailure(res.Failure)
		return res
	}
	res.Account = acct

	ok, err := deps.Passwords.Verify(secret, acct.SecretHash)
	if err != nil {
		deps.Logger.Warn("signin: stored secret hash unusable",
			zap.String("identifier", id), zap.Error(err))
	}
	if !ok {
		res.Phase = deps.Throttle.RecordFailure(ctx, id, rec)
		res.Failure = SignInFailureBadSecret
		res.Err = classifyCredentialFailure(res.Failure)
		return res
	}

	if !acct.EmailVerified && !deps.AllowUnverified {
		res.Failure = SignInFailureUnverified
		res.Err = autherr.ErrEmailNotVerified
		return res
	}

	if err := deps.Throttle.Reset(ctx, id, rec); err != nil {
		// The last-login update below clears the same fields.
		deps.Logger.Warn("signin: resetting attempts failed",
			zap.String("identifier", id), zap.Error(err))
	}

	summary, err := deps.Accounts.Describe(ctx, acct)
	if err != nil {
		res.Failure = SignInFailureStore
		res.Err = fmt.Errorf("%w: describe account: %v", autherr.ErrInternal, err)
		return res
	}
	res.Summary = summary

	access, refresh, err := issuePair(ctx, deps.Codec, deps.AllowList, deps.TTLs, acct.ID, accessPayload(acct, summary))
	if err != nil {
		res.Failure = SignInFailureIssue
		if errors.Is(err, errAllowList) {
			res.Failure = SignInFailureStore
		}
		res.Err = fmt.Errorf("%w: %w", autherr.ErrInternal, err)
		return res
	}
	res.AccessToken = access
	res.RefreshToken = refresh

	update := account.ClearThrottle()
	update.LastLogin = loginContext(ctx, deps)
	if deps.UpgradeSecrets {
		if hash, ok := upgradedHash(secret, acct.SecretHash, deps); ok {
			update.SecretHash = &hash
			res.SecretUpgraded = true
		}
	}
	if err := deps.Accounts.Update(ctx, id, update); err != nil {
		deps.Logger.Warn("signin: recording last login failed",
			zap.String("identifier", id), zap.Error(err))
		res.SecretUpgraded = false
	}

	return res
}

func loginContext(ctx context.Context, deps SignInDeps) *account.LoginContext {
	lc := &account.LoginContext{At: deps.Now()}
	if deps.ClientIP != nil {
		lc.IP = deps.ClientIP(ctx)
	}
	if deps.UserAgent != nil {
		lc.UserAgent = deps.UserAgent(ctx)
	}
	if deps.Geo != nil && lc.IP != "" {
		geo, err := deps.Geo.Locate(ctx, lc.IP)
		if err != nil {
			deps.Logger.Debug("signin: geo lookup failed", zap.Error(err))
		} else {
			lc.Geo = geo
		}
	}
	return lc
}

func upgradedHash(secret, current string, deps SignInDeps) (string, bool) {
	needs, err := deps.Passwords.NeedsUpgrade(current)
	if err != nil || !needs {
		return "", false
	}
	hash, err := deps.Passwords.Hash(secret)
	if err != nil {
		// Legacy secrets may be shorter than the current policy allows.
		return "", false
	}
	return hash, true
}
