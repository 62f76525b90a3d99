package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/viridial/authcore/internal/flows"
)

// EmailClaims is the content of a verified email-verification token.
type EmailClaims struct {
	Subject string
	Email   string
	Locale  string
}

// IssueEmailVerificationToken signs an email-verification token for subject.
// It fails with ErrSigning when no email secret is configured.
func (e *Engine) IssueEmailVerificationToken(subject, email, locale string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	token, err := flows.RunIssueEmailVerification(subject, email, locale, e.flows.Email)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricEmailTokenIssued)
	return token, nil
}

// ConsumeEmailVerificationToken verifies token and returns its claims. It
// does not touch any account; VerifyEmail does.
func (e *Engine) ConsumeEmailVerificationToken(token string) (*EmailClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	claims, err := flows.RunConsumeEmailVerification(token, e.flows.Email)
	if err != nil {
		return nil, err
	}
	return &EmailClaims{Subject: claims.Subject, Email: claims.Email, Locale: claims.Locale}, nil
}

// VerifyEmail consumes token and marks its account verified. Verifying an
// already verified account succeeds.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := flows.RunVerifyEmail(ctx, token, e.flows.Email)
	if res.Err != nil {
		e.metricInc(MetricEmailVerifyFailed)
		e.emitAudit(ctx, auditEventEmailVerifyFailure, false, res.Subject, res.Identifier, res.Err, nil)
		return res.Err
	}
	e.metricInc(MetricEmailVerified)
	meta := map[string]string(nil)
	if res.AlreadyVerified {
		meta = map[string]string{"already_verified": "true"}
	}
	e.emitAudit(ctx, auditEventEmailVerified, true, res.Subject, res.Identifier, nil, meta)
	return nil
}

// ResendVerification queues a fresh verification mail. Unknown and already
// verified identifiers succeed without sending anything.
func (e *Engine) ResendVerification(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	sent, err := flows.RunResendVerification(ctx, identifier, e.flows.Email)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return err
		}
		e.logger.Warn("resend verification failed", zap.String("identifier", identifier), zap.Error(err))
		return err
	}
	if sent {
		e.metricInc(MetricEmailTokenIssued)
		e.emitAudit(ctx, auditEventEmailTokenIssued, true, "", identifier, nil, nil)
	}
	return nil
}
