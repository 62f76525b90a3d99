package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/internal/throttle"
	"github.com/viridial/authcore/jwt"
	"github.com/viridial/authcore/mail"
)

// Deps groups the per-operation dependency sets. The Engine builds it once.
type Deps struct {
	SignIn SignInDeps
	Rotate RotateDeps
	Revoke RevokeDeps
	Email  EmailDeps
	SignUp SignUpDeps
	Unlock UnlockDeps
}

type TokenCodec interface {
	Issue(kind jwt.Kind, subject string, p jwt.Payload, ttl time.Duration) (string, error)
	Verify(kind jwt.Kind, token string) (*jwt.Claims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

type AttemptThrottle interface {
	Check(ctx context.Context, identifier string, rec *throttle.Record) error
	RecordFailure(ctx context.Context, identifier string, rec *throttle.Record) throttle.Phase
	Reset(ctx context.Context, identifier string, rec *throttle.Record) error
}

type RefreshAllowList interface {
	Put(ctx context.Context, token, subject string, ttl time.Duration) error
	Take(ctx context.Context, token string) (string, bool, error)
	Delete(ctx context.Context, token string) error
}

// MailQueue hands a message to the asynchronous mailer. It reports false when
// the message was dropped.
type MailQueue func(ctx context.Context, msg mail.Message) bool

// TokenTTLs holds the validity window of each token kind.
type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Email   time.Duration
}

func throttleRecord(acct *account.Account) *throttle.Record {
	if acct == nil {
		return nil
	}
	return &throttle.Record{FailedAttempts: acct.FailedAttempts, LockUntil: acct.LockUntil}
}

func accessPayload(acct *account.Account, summary *account.Summary) jwt.Payload {
	p := jwt.Payload{Email: acct.Identifier, Locale: acct.Locale}
	if summary != nil {
		if summary.Locale != "" {
			p.Locale = summary.Locale
		}
		p.Roles = summary.Roles
	}
	return p
}

var errAllowList = errors.New("refresh allow-list write failed")

// issuePair signs an access and a refresh token for subject and admits the
// refresh token to the allow-list. Allow-list failures wrap errAllowList.
func issuePair(ctx context.Context, codec TokenCodec, allow RefreshAllowList, ttls TokenTTLs, subject string, p jwt.Payload) (access, refresh string, err error) {
	access, err = codec.Issue(jwt.KindAccess, subject, p, ttls.Access)
	if err != nil {
		return "", "", err
	}
	refresh, err = codec.Issue(jwt.KindRefresh, subject, p, ttls.Refresh)
	if err != nil {
		return "", "", err
	}
	if err := allow.Put(ctx, refresh, subject, ttls.Refresh); err != nil {
		return "", "", fmt.Errorf("%w: %w", errAllowList, err)
	}
	return access, refresh, nil
}
