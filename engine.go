package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/viridial/authcore/internal/audit"
	"github.com/viridial/authcore/internal/counter"
	"github.com/viridial/authcore/internal/dispatch"
	"github.com/viridial/authcore/internal/flows"
	"github.com/viridial/authcore/internal/stores"
	"github.com/viridial/authcore/internal/throttle"
	"github.com/viridial/authcore/jwt"
	"github.com/viridial/authcore/mail"
)

// Engine runs the credential and session lifecycle. It is safe for
// concurrent use once built.
type Engine struct {
	config    Config
	now       func() time.Time
	logger    *zap.Logger
	counter   *counter.Client
	throttle  *throttle.Throttle
	allowList *stores.AllowList
	codec     *jwt.Codec
	flows     flows.Deps
	audit     *dispatch.Dispatcher[audit.Event]
	mail      *dispatch.Dispatcher[mail.Message]
	metrics   *Metrics
}

// Close drains the audit and mail queues.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
	e.mail.Close()
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mail.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.codec != nil && e.throttle != nil
}

// SignIn authenticates identifier with secret and returns a token pair plus
// the account summary. Unknown identifiers and wrong secrets both fail with
// ErrInvalidCredentials and both count toward the attempt limit.
func (e *Engine) SignIn(ctx context.Context, identifier, secret string) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	res := flows.RunSignIn(ctx, identifier, secret, e.flows.SignIn)
	e.metrics.Observe(MetricSignInLatency, time.Since(start))

	subject := ""
	if res.Account != nil {
		subject = res.Account.ID
	}

	switch res.Failure {
	case flows.SignInFailureNone:
		e.metricInc(MetricSignInSuccess)
		if res.SecretUpgraded {
			e.metricInc(MetricSecretUpgraded)
		}
		e.emitAudit(ctx, auditEventSignInSuccess, true, subject, res.Identifier, nil, nil)
		out := &SignInResult{
			TokenPair: TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken},
		}
		if res.Summary != nil {
			out.Account = *res.Summary
		}
		return out, nil
	case flows.SignInFailureThrottled:
		e.metricInc(MetricSignInThrottled)
		e.emitAudit(ctx, auditEventSignInThrottled, false, subject, res.Identifier, res.Err, nil)
	case flows.SignInFailureLocked:
		e.metricInc(MetricSignInLocked)
		e.emitAudit(ctx, auditEventSignInLocked, false, subject, res.Identifier, res.Err, nil)
	case flows.SignInFailureUnverified:
		e.metricInc(MetricSignInUnverified)
		e.emitAudit(ctx, auditEventSignInUnverified, false, subject, res.Identifier, res.Err, nil)
	case flows.SignInFailureMalformed:
		e.metricInc(MetricSignInFailure)
	default:
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, subject, res.Identifier, res.Err, map[string]string{
			"reason": res.Failure.String(),
			"phase":  res.Phase.String(),
		})
	}
	return nil, res.Err
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// consumed even when the exchange fails.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res := flows.RunRotate(ctx, refreshToken, e.flows.Rotate)
	if res.Failure != flows.RotateFailureNone {
		e.metricInc(MetricRotateInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, "", res.Err, map[string]string{
			"reason": res.Failure.String(),
		})
		return nil, res.Err
	}
	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, auditEventRefreshRotated, true, res.Subject, "", nil, nil)
	return &TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

// Revoke removes refreshToken from the allow-list. Revoking an unknown or
// already revoked token succeeds.
func (e *Engine) Revoke(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := flows.RunRevoke(ctx, refreshToken, e.flows.Revoke); err != nil {
		return err
	}
	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRefreshRevoked, true, "", "", nil, nil)
	return nil
}

// ValidateAccess verifies an access token and returns the identity it
// asserts. Expired tokens fail with ErrExpiredToken, anything else with
// ErrInvalidToken.
func (e *Engine) ValidateAccess(accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	claims, err := e.codec.Verify(jwt.KindAccess, accessToken)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrSigning):
			return nil, err
		default:
			return nil, ErrInvalidToken
		}
	}
	id := &Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Locale:  claims.Locale,
		Roles:   claims.Roles,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Health pings the counter store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.counter == nil {
		return HealthStatus{Error: ErrEngineNotReady.Error()}
	}
	latency, err := e.counter.Ping(ctx)
	if err != nil {
		return HealthStatus{RedisLatency: latency, Error: err.Error()}
	}
	return HealthStatus{Available: true, RedisLatency: latency}
}
