package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/viridial/authcore/internal/counter"
	"github.com/viridial/authcore/internal/dispatch"
	"github.com/viridial/authcore/internal/flows"
	"github.com/viridial/authcore/internal/stores"
	"github.com/viridial/authcore/internal/throttle"
	"github.com/viridial/authcore/jwt"
	"github.com/viridial/authcore/mail"
	"github.com/viridial/authcore/password"
)

// Builder collects the Engine's collaborators. It is single-use: Build may
// succeed once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	mailer    mail.Sender
	logger    *zap.Logger
	auditSink AuditSink
	geo       GeoLocator
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the counter store. Any go-redis client works, including
// cluster and failover clients.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer sets the verification mail sender. Without one, messages are
// logged through mail.LogSender.
func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink enables audit emission to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

func (b *Builder) WithGeoLocator(geo GeoLocator) *Builder {
	b.geo = geo
	return b
}

// WithClock replaces time.Now for token timestamps and lock deadlines.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = mail.LogSender{Logger: logger}
	}

	engine := &Engine{
		config:  cfg,
		now:     now,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	engine.counter = counter.New(b.redis, counter.Config{
		KeyPrefix: cfg.Store.KeyPrefix,
		Timeout:   cfg.Store.CounterTimeout,
	})
	accounts := newBoundedStore(b.accounts, cfg.Store.RecordTimeout)

	th, err := throttle.New(engine.counter, flows.DurableAttempts{Store: accounts}, throttle.Config{
		Limit:  cfg.Throttle.AttemptLimit,
		Window: cfg.Throttle.AttemptWindow,
	}, now, logger, throttle.Hooks{
		FailOpen: func() { engine.metricInc(MetricThrottleFailOpen) },
		Locked:   func() { engine.metricInc(MetricAccountLocked) },
	})
	if err != nil {
		return nil, err
	}
	engine.throttle = th

	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  cloneBytes(cfg.Tokens.AccessSecret),
		SharedSecret:  cloneBytes(cfg.Tokens.SharedSecret),
		RefreshSecret: cloneBytes(cfg.Tokens.RefreshSecret),
		EmailSecret:   cloneBytes(cfg.Tokens.EmailSecret),
		Issuer:        cfg.Tokens.Issuer,
		Leeway:        cfg.Tokens.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinPasswordBytes,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	engine.allowList = stores.NewAllowList(engine.counter)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.mail = dispatch.New(dispatch.Config{
		BufferSize: cfg.Mail.BufferSize,
		DropIfFull: cfg.Mail.DropIfFull,
	}, func(ctx context.Context, msg mail.Message) {
		if err := mailer.Send(ctx, msg); err != nil {
			logger.Warn("mail delivery failed",
				zap.String("kind", string(msg.Kind)),
				zap.String("identifier", msg.Recipient),
				zap.Error(err))
		}
	})

	ttls := flows.TokenTTLs{
		Access:  cfg.Tokens.AccessTTL,
		Refresh: cfg.Tokens.RefreshTTL,
		Email:   cfg.Tokens.EmailTTL,
	}
	emailDeps := flows.EmailDeps{
		Accounts: accounts,
		Codec:    codec,
		TTLs:     ttls,
		Mail:     engine.mail.Submit,
		Logger:   logger,
	}
	engine.flows = flows.Deps{
		SignIn: flows.SignInDeps{
			Accounts:        accounts,
			Throttle:        th,
			Codec:           codec,
			AllowList:       engine.allowList,
			Passwords:       hasher,
			Geo:             b.geo,
			TTLs:            ttls,
			AllowUnverified: cfg.Verification.AllowUnverifiedLogin,
			UpgradeSecrets:  cfg.Password.UpgradeOnLogin,
			ClientIP:        clientIPFromContext,
			UserAgent:       userAgentFromContext,
			Now:             now,
			Logger:          logger,
		},
		Rotate: flows.RotateDeps{
			Codec:     codec,
			AllowList: engine.allowList,
			TTLs:      ttls,
		},
		Revoke: flows.RevokeDeps{AllowList: engine.allowList},
		Email:  emailDeps,
		SignUp: flows.SignUpDeps{
			Accounts:  accounts,
			Passwords: hasher,
			Email:     emailDeps,
			Verified:  cfg.Verification.VerifiedOnSignUp,
			Logger:    logger,
		},
		Unlock: flows.UnlockDeps{Accounts: accounts, Throttle: th},
	}

	b.built = true
	return engine, nil
}
