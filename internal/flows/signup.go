package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/internal/autherr"
	"github.com/viridial/authcore/password"
)

type SignUpRequest struct {
	Identifier  string
	Secret      string
	DisplayName string
	Locale      string
	RoleIDs     []string
}

type SignUpResult struct {
	Account          *account.Account
	VerificationSent bool
	Duplicate        bool
	Err              error
}

type SignUpDeps struct {
	Accounts  account.Store
	Passwords PasswordHasher
	Email     EmailDeps
	// Verified marks new accounts verified up front, skipping the mail.
	Verified bool
	Logger   *zap.Logger
}

// RunSignUp creates an account and queues its verification mail. Mail and
// token failures are logged; the account is kept and ResendVerification can
// retry.
func RunSignUp(ctx context.Context, req SignUpRequest, deps SignUpDeps) SignUpResult {
	id := account.NormalizeIdentifier(req.Identifier)
	if !plausibleEmail(id) {
		return SignUpResult{Err: fmt.Errorf("%w: identifier must be an email address", autherr.ErrInvalidRequest)}
	}

	hash, err := deps.Passwords.Hash(req.Secret)
	if err != nil {
		if errors.Is(err, password.ErrPasswordLength) {
			return SignUpResult{Err: fmt.Errorf("%w: %v", autherr.ErrInvalidRequest, err)}
		}
		return SignUpResult{Err: fmt.Errorf("%w: hash secret: %v", autherr.ErrInternal, err)}
	}

	acct, err := deps.Accounts.Create(ctx, account.New{
		Identifier:    id,
		DisplayName:   strings.TrimSpace(req.DisplayName),
		SecretHash:    hash,
		Locale:        req.Locale,
		EmailVerified: deps.Verified,
		RoleIDs:       req.RoleIDs,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return SignUpResult{Duplicate: true, Err: autherr.ErrAccountExists}
		}
		return SignUpResult{Err: fmt.Errorf("%w: create account: %v", autherr.ErrInternal, err)}
	}

	res := SignUpResult{Account: acct}
	if acct.EmailVerified {
		return res
	}
	sent, err := queueVerification(ctx, acct, deps.Email)
	if err != nil {
		deps.Logger.Warn("signup: verification token not issued",
			zap.String("identifier", id), zap.Error(err))
	}
	res.VerificationSent = sent
	return res
}

func plausibleEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n") &&
		strings.Contains(s[at+1:], ".")
}
