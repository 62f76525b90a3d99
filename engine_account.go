package authcore

import (
	"context"
	"errors"

	"github.com/viridial/authcore/account"
	"github.com/viridial/authcore/internal/flows"
)

// SignUp creates an account and, unless accounts start verified, queues a
// verification mail. Mail failures do not fail the call.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res := flows.RunSignUp(ctx, flows.SignUpRequest{
		Identifier:  req.Identifier,
		Secret:      req.Secret,
		DisplayName: req.DisplayName,
		Locale:      req.Locale,
		RoleIDs:     req.RoleIDs,
	}, e.flows.SignUp)

	identifier := account.NormalizeIdentifier(req.Identifier)
	if res.Err != nil {
		if res.Duplicate || errors.Is(res.Err, ErrAccountExists) {
			e.metricInc(MetricSignUpDuplicate)
			e.emitAudit(ctx, auditEventSignUpDuplicate, false, "", identifier, res.Err, nil)
		}
		return nil, res.Err
	}

	e.metricInc(MetricSignUpSuccess)
	if res.VerificationSent {
		e.metricInc(MetricEmailTokenIssued)
	}
	e.emitAudit(ctx, auditEventSignUpSuccess, true, res.Account.ID, res.Account.Identifier, nil, nil)
	return &SignUpResult{
		AccountID:            res.Account.ID,
		Identifier:           res.Account.Identifier,
		VerificationRequired: !res.Account.EmailVerified,
		VerificationQueued:   res.VerificationSent,
	}, nil
}

// UnlockAccount clears the attempt counter and the durable lock of
// identifier.
func (e *Engine) UnlockAccount(ctx context.Context, identifier string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := flows.RunUnlock(ctx, identifier, e.flows.Unlock); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventAccountUnlocked, true, "", account.NormalizeIdentifier(identifier), nil, nil)
	return nil
}

// LoginAttempts returns the current windowed failure count for identifier.
func (e *Engine) LoginAttempts(ctx context.Context, identifier string) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	id := account.NormalizeIdentifier(identifier)
	if id == "" {
		return 0, ErrInvalidRequest
	}
	n, err := e.throttle.Attempts(ctx, id)
	if err != nil {
		return 0, errors.Join(ErrInternal, err)
	}
	return n, nil
}
