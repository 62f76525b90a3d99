package flows

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/internal/autherr"
	"github.com/viridial/authcore/jwt"
	"github.com/viridial/authcore/mail"
)

type EmailDeps struct {
	Accounts account.Store
	Codec    TokenCodec
	TTLs     TokenTTLs
	Mail     MailQueue
	Logger   *zap.Logger
}

// RunIssueEmailVerification signs a one-shot email-verification token.
func RunIssueEmailVerification(subject, email, locale string, deps EmailDeps) (string, error) {
	if subject == "" || email == "" {
		return "", autherr.ErrInvalidRequest
	}
	return deps.Codec.Issue(jwt.KindEmailVerification, subject, jwt.Payload{Email: email, Locale: locale}, deps.TTLs.Email)
}

// RunConsumeEmailVerification verifies token and returns its claims. Expired
// tokens fail with ErrExpiredToken, everything else with ErrInvalidToken.
// Nothing is recorded, so a token stays consumable until it expires.
func RunConsumeEmailVerification(token string, deps EmailDeps) (*jwt.Claims, error) {
	claims, err := deps.Codec.Verify(jwt.KindEmailVerification, token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, autherr.ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSigning) {
			return nil, fmt.Errorf("%w: %w", autherr.ErrInternal, err)
		}
		return nil, autherr.ErrInvalidToken
	}
	if claims.Email == "" {
		return nil, autherr.ErrInvalidToken
	}
	return claims, nil
}

type VerifyEmailResult struct {
	Subject         string
	Identifier      string
	AlreadyVerified bool
	Err             error
}

// RunVerifyEmail consumes token and marks the named account verified. The
// account must still exist under the token's email with the token's subject.
func RunVerifyEmail(ctx context.Context, token string, deps EmailDeps) VerifyEmailResult {
	claims, err := RunConsumeEmailVerification(token, deps)
	if err != nil {
		return VerifyEmailResult{Err: err}
	}
	id := account.NormalizeIdentifier(claims.Email)
	res := VerifyEmailResult{Subject: claims.Subject, Identifier: id}

	acct, err := deps.Accounts.FindByIdentifier(ctx, id)
	if err != nil {
		res.Err = fmt.Errorf("%w: find account: %v", autherr.ErrInternal, err)
		return res
	}
	if acct == nil || acct.ID != claims.Subject {
		res.Err = autherr.ErrInvalidToken
		return res
	}
	if acct.EmailVerified {
		res.AlreadyVerified = true
		return res
	}

	verified := true
	if err := deps.Accounts.Update(ctx, id, account.Update{EmailVerified: &verified}); err != nil {
		res.Err = fmt.Errorf("%w: mark verified: %v", autherr.ErrInternal, err)
	}
	return res
}

// RunResendVerification queues a fresh verification mail for an unverified
// account. Unknown and already verified identifiers succeed silently and
// report sent=false.
func RunResendVerification(ctx context.Context, identifier string, deps EmailDeps) (sent bool, err error) {
	id := account.NormalizeIdentifier(identifier)
	if id == "" {
		return false, autherr.ErrInvalidRequest
	}
	acct, err := deps.Accounts.FindByIdentifier(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: find account: %v", autherr.ErrInternal, err)
	}
	if acct == nil || acct.EmailVerified {
		return false, nil
	}
	return queueVerification(ctx, acct, deps)
}

func queueVerification(ctx context.Context, acct *account.Account, deps EmailDeps) (bool, error) {
	token, err := RunIssueEmailVerification(acct.ID, acct.Identifier, acct.Locale, deps)
	if err != nil {
		return false, fmt.Errorf("%w: issue verification token: %v", autherr.ErrInternal, err)
	}
	if deps.Mail == nil {
		return false, nil
	}
	queued := deps.Mail(ctx, mail.Message{
		Kind:      mail.KindEmailVerification,
		Recipient: acct.Identifier,
		Token:     token,
		Locale:    acct.Locale,
	})
	if !queued {
		deps.Logger.Warn("verification mail dropped", zap.String("identifier", acct.Identifier))
	}
	return queued, nil
}
